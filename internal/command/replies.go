package command

// User-facing reply templates. The service answers in Brazilian Portuguese;
// logs stay in English.
const (
	replyUnknown     = "Não conheço o comando *%s*. Use *%smenu* para ver a lista."
	replyFailure     = "Algo deu errado ao executar o comando. Tente novamente."
	replyBadArgs     = "Não entendi. Confira os argumentos do comando."
	replyUsage       = "Uso: *%s%s*"
	replyOwnerOnly   = "Apenas o dono do bot pode usar este comando."
	replyGroupOnly   = "Este comando só funciona em grupos."
	replyAdminOnly   = "Apenas administradores do grupo podem usar este comando."
	replyBotNotAdmin = "Preciso ser administrador do grupo para fazer isso."

	replyLogin        = "Seu link de acesso: %s"
	replyLoginInGroup = "Me chame no privado e envie *%s* para receber seu link de acesso."

	replyNoTargets = "Marque alguém, responda a uma mensagem ou informe o número."

	replyAntiLinkAdmin   = "Link detectado. Administradores podem postar links, mas o aviso fica. 👀"
	replyAntiLinkRemoved = "@%s foi removido(a): links não são permitidos neste grupo."

	replyWelcomeDefault  = "Bem-vindo(a) ao {{group}}, {{user}}! 👋"
	replyFarewellDefault = "Até mais, {{user}}. 👋"
	replyCaptcha         = "@%s, reaja a qualquer mensagem em até %d minutos para confirmar que você não é um robô."
	replyCaptchaOK       = "@%s verificado(a). Bem-vindo(a)! ✅"

	replyWelcomeOn   = "Boas-vindas ativadas. Use *%sboasvindas set <texto>* para personalizar."
	replyWelcomeOff  = "Boas-vindas desativadas."
	replyWelcomeSet  = "Mensagem de boas-vindas atualizada."
	replyFarewellOn  = "Despedidas ativadas. Use *%sdespedida set <texto>* para personalizar."
	replyFarewellOff = "Despedidas desativadas."
	replyFarewellSet = "Mensagem de despedida atualizada."

	replyAntiLinkOn     = "Anti-link ativado. Links de convite e de fora da lista liberada serão removidos."
	replyAntiLinkOff    = "Anti-link desativado."
	replyAntiLinkFreed  = "*%s* liberado no anti-link."
	replyAntiLinkBarred = "*%s* removido da lista liberada."

	replyPrefixSet    = "Prefixo deste grupo agora é *%s*"
	replyPrefixReset  = "Prefixo restaurado para o padrão *%s*"
	replyPrefixStatus = "Prefixo atual: *%s*"

	replyNewsOn  = "Este grupo receberá os anúncios. 📰"
	replyNewsOff = "Este grupo não receberá mais anúncios."

	replyNSFWOn  = "Conteúdo +18 liberado neste grupo."
	replyNSFWOff = "Conteúdo +18 bloqueado neste grupo."

	replyStickerOn  = "Figurinhas automáticas ativadas."
	replyStickerOff = "Figurinhas automáticas desativadas."

	replyCaptchaOn  = "Verificação de novos membros ativada."
	replyCaptchaOff = "Verificação de novos membros desativada."

	replyPremiumAdded   = "Premium concedido a %d usuário(s)."
	replyPremiumRemoved = "Premium removido de %d usuário(s)."
	replyPremiumEmpty   = "Nenhum usuário premium cadastrado."

	replyAddDone      = "Convites enviados: %d adicionados, %d falharam."
	replyBanDone      = "%d participante(s) removido(s)."
	replyPromoteDone  = "%d participante(s) promovido(s) a admin."
	replyDemoteDone   = "%d participante(s) rebaixado(s)."
	replyNameSet      = "Nome do grupo atualizado."
	replyDescSet      = "Descrição do grupo atualizada."
	replyGroupClosed  = "Grupo fechado: somente admins podem enviar mensagens. 🔒"
	replyGroupOpened  = "Grupo aberto: todos podem enviar mensagens. 🔓"
	replyGroupLocked  = "Edição de dados do grupo restrita aos admins."
	replyGroupFreed   = "Edição de dados do grupo liberada para todos."
	replyLeaveConfirm = "Tem certeza? Envie *%ssair confirmar* para eu sair do grupo."
	replyLeft         = "Saindo. Até logo! 👋"

	replyLinkRevoked    = "Link anterior revogado. Novo link:\n%s"
	replyJoined         = "Entrei no grupo %s."
	replyRequestsNone   = "Nenhuma solicitação de entrada pendente."
	replyRequestsDone   = "%d solicitação(ões) processada(s)."
	replyEphemeralOff   = "Mensagens temporárias desativadas."
	replyEphemeralSet   = "Mensagens temporárias definidas para %s."
	replyAddModeAdmin   = "Somente admins podem adicionar participantes."
	replyAddModeAll     = "Todos podem adicionar participantes."

	replyAnnounceStart    = "Enviando anúncio para %d grupo(s)..."
	replyAnnounceProgress = "Anúncio: %d de %d enviados."
	replyAnnounceEmpty    = "Nenhum grupo com notícias ativadas. Use *%snoticias on* nos grupos de destino."
	replyAnnounceDone     = "Anúncio concluído: %d de %d enviados em %s."

	replyMenuHeader = "*Comandos disponíveis*"
	replyPong       = "pong 🏓 (ativo há %s)"
)
