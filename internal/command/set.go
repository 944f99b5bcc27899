package command

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"zelador/internal/broadcast"
	"zelador/internal/infra/config"
	"zelador/internal/send"
)

// Broadcaster fans one message out to a target list.
type Broadcaster interface {
	Run(ctx context.Context, targets []types.JID, text string, mode config.BroadcastMode, progress func(done, total int)) *broadcast.Report
}

// SetDeps collects what the built-in command set runs against.
type SetDeps struct {
	Registry  *Registry
	Send      Replier
	Groups    GroupDirectory
	Configs   SettingsStore
	Resolver  Canonicalizer
	Engine    Broadcaster
	Broadcast config.BroadcastConfig
	Prefix    string
	Owner     types.JID
	Self      func() types.JID
	Log       waLog.Logger
}

// Set bundles the built-in commands and their dependencies. Constructing
// it registers every command.
type Set struct {
	registry  *Registry
	send      Replier
	groups    GroupDirectory
	configs   SettingsStore
	resolver  Canonicalizer
	engine    Broadcaster
	broadcast config.BroadcastConfig
	prefix    string
	owner     types.JID
	self      func() types.JID
	started   time.Time
	log       waLog.Logger

	ops GroupOps
}

// NewSet creates the command set and registers it.
func NewSet(d SetDeps) *Set {
	s := &Set{
		registry:  d.Registry,
		send:      d.Send,
		groups:    d.Groups,
		configs:   d.Configs,
		resolver:  d.Resolver,
		engine:    d.Engine,
		broadcast: d.Broadcast,
		prefix:    d.Prefix,
		owner:     d.Owner,
		self:      d.Self,
		started:   time.Now(),
		log:       d.Log.Sub("CommandSet"),
	}
	s.register()
	return s
}

// SetOps attaches the provider session (delayed initialization).
func (s *Set) SetOps(ops GroupOps) {
	s.ops = ops
}

func (s *Set) register() {
	s.registry.Register(
		&Command{Name: "menu", Help: "lista os comandos disponíveis", Run: s.cmdMenu},
		&Command{Name: "ping", Help: "mostra se estou no ar", Run: s.cmdPing},
		&Command{Name: "dados", Help: "mostra os dados deste grupo", GroupOnly: true, Run: s.cmdInfo},

		&Command{Name: "add", Help: "adiciona participantes pelo número", Usage: "add <números>", GroupOnly: true, AdminOnly: true, BotAdmin: true, Run: s.cmdAdd},
		&Command{Name: "ban", Help: "remove os participantes marcados", Usage: "ban <@menção|resposta|número>", GroupOnly: true, AdminOnly: true, BotAdmin: true, Run: s.cmdBan},
		&Command{Name: "promover", Help: "promove participantes a admin", Usage: "promover <@menção|resposta|número>", GroupOnly: true, AdminOnly: true, BotAdmin: true, Run: s.cmdPromote},
		&Command{Name: "rebaixar", Help: "remove o admin de participantes", Usage: "rebaixar <@menção|resposta|número>", GroupOnly: true, AdminOnly: true, BotAdmin: true, Run: s.cmdDemote},
		&Command{Name: "nome", Help: "muda o nome do grupo", Usage: "nome <novo nome>", GroupOnly: true, AdminOnly: true, BotAdmin: true, Run: s.cmdName},
		&Command{Name: "descricao", Help: "muda a descrição do grupo", Usage: "descricao <texto>", GroupOnly: true, AdminOnly: true, BotAdmin: true, Run: s.cmdDescription},
		&Command{Name: "grupo", Help: "abre ou fecha o grupo para mensagens", Usage: "grupo abrir|fechar", GroupOnly: true, AdminOnly: true, BotAdmin: true, Run: s.cmdGroup},
		&Command{Name: "restrito", Help: "restringe a edição dos dados do grupo", Usage: "restrito on|off", GroupOnly: true, AdminOnly: true, BotAdmin: true, Run: s.cmdRestrict},
		&Command{Name: "link", Help: "mostra o link de convite", GroupOnly: true, AdminOnly: true, BotAdmin: true, Run: s.cmdLink},
		&Command{Name: "revogar", Help: "revoga o link de convite", GroupOnly: true, AdminOnly: true, BotAdmin: true, Run: s.cmdRevokeLink},
		&Command{Name: "solicitacoes", Help: "gerencia pedidos de entrada", Usage: "solicitacoes listar|aprovar|recusar [todos]", GroupOnly: true, AdminOnly: true, BotAdmin: true, Run: s.cmdRequests},
		&Command{Name: "temporarias", Help: "configura mensagens temporárias", Usage: "temporarias off|24h|7d|90d", GroupOnly: true, AdminOnly: true, BotAdmin: true, Run: s.cmdEphemeral},
		&Command{Name: "modoadd", Help: "define quem pode adicionar participantes", Usage: "modoadd admin|todos", GroupOnly: true, AdminOnly: true, BotAdmin: true, Run: s.cmdAddMode},
		&Command{Name: "sair", Help: "faz o bot sair do grupo", Usage: "sair confirmar", GroupOnly: true, OwnerOnly: true, Run: s.cmdLeave},
		&Command{Name: "entrar", Help: "entra em um grupo pelo link", Usage: "entrar <link>", OwnerOnly: true, Run: s.cmdJoin},
		&Command{Name: "espiar", Help: "mostra os dados de um convite", Usage: "espiar <link>", Run: s.cmdPeek},

		&Command{Name: "boasvindas", Help: "configura a mensagem de boas-vindas", Usage: "boasvindas on|off|set <texto>", GroupOnly: true, AdminOnly: true, Run: s.cmdWelcome},
		&Command{Name: "despedida", Help: "configura a mensagem de despedida", Usage: "despedida on|off|set <texto>", GroupOnly: true, AdminOnly: true, Run: s.cmdFarewell},
		&Command{Name: "antilink", Help: "bloqueia links no grupo", Usage: "antilink on|off|lista|liberar <rede|domínio>|bloquear <rede|domínio>", GroupOnly: true, AdminOnly: true, Run: s.cmdAntiLink},
		&Command{Name: "prefixo", Help: "configura o prefixo deste grupo", Usage: "prefixo set <prefixo>|status|reset", GroupOnly: true, AdminOnly: true, Run: s.cmdPrefix},
		&Command{Name: "noticias", Help: "inscreve o grupo nos anúncios", Usage: "noticias on|off|status", GroupOnly: true, AdminOnly: true, Run: s.cmdNews},
		&Command{Name: "nsfw", Help: "libera conteúdo +18 no grupo", Usage: "nsfw on|off|status", GroupOnly: true, AdminOnly: true, Run: s.cmdNSFW},
		&Command{Name: "autofigurinha", Help: "converte mídias em figurinha automaticamente", Usage: "autofigurinha on|off|status", GroupOnly: true, AdminOnly: true, Run: s.cmdAutoSticker},
		&Command{Name: "captcha", Help: "exige verificação de novos membros", Usage: "captcha on|off|status", GroupOnly: true, AdminOnly: true, BotAdmin: true, Run: s.cmdCaptcha},

		&Command{Name: "premium", Help: "gerencia os usuários premium", Usage: "premium add|remover|lista", OwnerOnly: true, Run: s.cmdPremium},
		&Command{Name: "anuncio", Help: "envia um anúncio aos grupos inscritos", Usage: "anuncio [rapido|seguro] <texto>", OwnerOnly: true, Run: s.cmdAnnounce},
	)
}

func (s *Set) reply(ctx context.Context, env *Envelope, text string) error {
	_, err := s.send.SendText(ctx, env.Chat, text,
		send.WithQuoted(env.Event), send.WithEphemeral(env.Expiration))
	return err
}

func (s *Set) replyTagged(ctx context.Context, env *Envelope, text string, tags []types.JID) error {
	_, err := s.send.SendTagged(ctx, env.Chat, text, tags, send.WithEphemeral(env.Expiration))
	return err
}

func (s *Set) usage(ctx context.Context, env *Envelope) error {
	if cmd, ok := s.registry.Lookup(env.Command); ok && cmd.Usage != "" {
		return s.reply(ctx, env, fmt.Sprintf(replyUsage, env.Prefix, cmd.Usage))
	}
	return s.reply(ctx, env, replyBadArgs)
}

func (s *Set) isOwner(id types.JID) bool {
	return !s.owner.IsEmpty() && id.User == s.owner.User
}

// client returns the attached session or an error before first connect.
func (s *Set) client() (GroupOps, error) {
	if s.ops == nil {
		return nil, fmt.Errorf("client not initialized")
	}
	return s.ops, nil
}
