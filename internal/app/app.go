// Package app assembles the service: stores, caches, the write-behind
// queue, the command layer, and the connection supervisor.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"zelador/internal/auth"
	"zelador/internal/broadcast"
	"zelador/internal/cache"
	"zelador/internal/command"
	"zelador/internal/event"
	"zelador/internal/groups"
	"zelador/internal/identity"
	"zelador/internal/infra/config"
	"zelador/internal/jid"
	"zelador/internal/metrics"
	"zelador/internal/queue"
	"zelador/internal/send"
	"zelador/internal/store"
)

// App is the main application orchestrator.
type App struct {
	Config *config.Config
	Log    waLog.Logger

	Session    *auth.Session
	Store      *store.Store
	Queue      *queue.Queue
	Tier       *cache.Tier
	Resolver   *identity.Resolver
	Groups     *groups.Service
	Send       *send.Service
	Engine     *broadcast.Engine
	Supervisor *Supervisor
	Router     *event.Router
	Metrics    *metrics.Server

	// Sub-stores for convenience.
	Messages *store.MessageStore
	Chats    *store.ChatStore
	Contacts *store.ContactStore
	Mappings *store.LIDStore
	Rooms    *store.GroupStore
	Configs  *store.ConfigStore

	ctx    context.Context
	cancel context.CancelFunc
}

// New wires the application together. Nothing connects yet; Run does.
func New(ctx context.Context, cfg *config.Config, log waLog.Logger) (*App, error) {
	log.Infof("Initializing %s...", cfg.Process.AppName)

	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to prepare directories: %w", err)
	}

	owner, err := jid.Parse(cfg.Process.OwnerJID)
	if err != nil {
		return nil, fmt.Errorf("invalid owner jid: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	session, err := auth.Open(ctx, cfg.WhatsApp.AuthDir, log)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	appStore, err := store.Open(ctx, cfg.Database, log)
	if err != nil {
		session.Close()
		cancel()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	messages := store.NewMessageStore(appStore)
	chats := store.NewChatStore(appStore)
	contacts := store.NewContactStore(appStore)
	mappings := store.NewLIDStore(appStore)
	rooms := store.NewGroupStore(appStore)
	configs := store.NewConfigStore(appStore)

	q := queue.New(
		queue.NewStoreSink(messages, chats, contacts, mappings),
		cfg.Queue.Size, cfg.Queue.DrainTimeout, log)

	tier := cache.NewTier(cfg.Cache, log)
	resolver := identity.NewResolver(mappings, messages, q, cfg.Identity, log)
	groupsSvc := groups.New(rooms, tier, resolver, cfg.Sync, log)
	sendSvc := send.New(q, log)
	engine := broadcast.New(sendSvc, cfg.Broadcast, log)

	supervisor := NewSupervisor(ctx, SupervisorDeps{
		Session:   session,
		QR:        auth.NewQRHandler(cfg.WhatsApp.QRDir, log),
		Reconnect: cfg.Reconnect,
		Device:    cfg.WhatsApp.DeviceName,
		Stop:      cancel,
		Log:       log,
	})

	registry := command.NewRegistry()
	antilink := command.NewAntiLink(sendSvc, groupsSvc, supervisor.Self, log)
	greeter := command.NewGreeter(sendSvc, configs, groupsSvc, resolver, tier.Events, supervisor.Self, log)
	set := command.NewSet(command.SetDeps{
		Registry:  registry,
		Send:      sendSvc,
		Groups:    groupsSvc,
		Configs:   configs,
		Resolver:  resolver,
		Engine:    engine,
		Broadcast: cfg.Broadcast,
		Prefix:    cfg.Process.Prefix,
		Owner:     owner,
		Self:      supervisor.Self,
		Log:       log,
	})
	dispatcher := command.NewDispatcher(command.Deps{
		Registry: registry,
		Send:     sendSvc,
		Configs:  configs,
		Groups:   groupsSvc,
		AntiLink: antilink,
		Prefix:   cfg.Process.Prefix,
		Trigger:  cfg.WhatsApp.LoginTrigger,
		LoginURL: cfg.WhatsApp.LoginURL,
		Emoji:    cfg.Process.ReactEmoji,
		Owner:    owner,
		Self:     supervisor.Self,
		Log:      log,
	})

	router := event.NewRouter(event.Deps{
		Queue:        q,
		Tier:         tier,
		Resolver:     resolver,
		Groups:       groupsSvc,
		Messages:     messages,
		Chats:        chats,
		Connection:   supervisor,
		Commands:     dispatcher,
		Greeter:      greeter,
		Polls:        supervisor,
		HistoryLimit: cfg.Sync.HistoryLimit,
		Log:          log,
	})
	supervisor.AttachRouter(router)

	// Every fresh client re-binds the services that talk to it.
	supervisor.OnClient(func(c *whatsmeow.Client) {
		sendSvc.SetClient(c)
		groupsSvc.SetClient(c)
		resolver.SetDevice(c.Store.LIDs)
		set.SetOps(c)
		antilink.SetOps(c)
		greeter.SetOps(c)
	})
	supervisor.OnOpen(func(ctx context.Context, c *whatsmeow.Client) {
		syncCtx, cancel := context.WithTimeout(ctx, cfg.Sync.GroupSyncTimeout)
		defer cancel()
		if n, err := groupsSvc.SyncJoined(syncCtx); err != nil {
			log.Warnf("Joined group sync failed: %v", err)
		} else {
			log.Infof("Synced %d joined groups", n)
		}
		syncContacts(syncCtx, c, q, log)
		if err := c.SendPresence(ctx, types.PresenceAvailable); err != nil {
			log.Debugf("Failed to send presence: %v", err)
		}
	})

	app := &App{
		Config:     cfg,
		Log:        log,
		Session:    session,
		Store:      appStore,
		Queue:      q,
		Tier:       tier,
		Resolver:   resolver,
		Groups:     groupsSvc,
		Send:       sendSvc,
		Engine:     engine,
		Supervisor: supervisor,
		Router:     router,
		Messages:   messages,
		Chats:      chats,
		Contacts:   contacts,
		Mappings:   mappings,
		Rooms:      rooms,
		Configs:    configs,
		ctx:        ctx,
		cancel:     cancel,
	}

	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewServer(cfg.Metrics.Host, cfg.Metrics.Port, cfg.Metrics.Path)
	}

	return app, nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.Log.Infof("Starting %s...", a.Config.Process.AppName)

	a.Tier.Start()

	var metricsErr chan error
	if a.Metrics != nil {
		metricsErr = make(chan error, 1)
		a.Metrics.Start(metricsErr)
	}

	// Signals cancel the root context.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		a.Log.Infof("Received %v, initiating shutdown...", sig)
		a.cancel()
	}()

	if err := a.Supervisor.Connect(); err != nil {
		a.Log.Warnf("Initial connection failed, retry scheduled: %v", err)
	}

	a.Groups.StartRefresher(a.Supervisor.Online)

	if a.Config.Identity.BackfillOnStart {
		go func() {
			if err := a.Resolver.Backfill(a.ctx); err != nil {
				a.Log.Warnf("Identity backfill failed: %v", err)
			}
		}()
	}

	a.Log.Infof("%s is running. Press Ctrl+C to stop.", a.Config.Process.AppName)

	select {
	case <-a.ctx.Done():
	case err := <-metricsErr:
		a.Log.Errorf("Metrics server failed: %v", err)
	}
	return a.Shutdown()
}

// contactSyncMax bounds how many SDK contacts one sync pass may queue.
const contactSyncMax = 2000

// syncContacts seeds the contact table from the SDK's own contact store,
// which the session keeps current through app-state sync.
func syncContacts(ctx context.Context, c *whatsmeow.Client, q *queue.Queue, log waLog.Logger) {
	all, err := c.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		log.Warnf("Failed to read session contacts: %v", err)
		return
	}
	queued := 0
	for id, info := range all {
		if !jid.IsUser(id) {
			continue
		}
		name := info.FullName
		if name == "" {
			name = info.FirstName
		}
		if name == "" {
			name = info.BusinessName
		}
		q.EnqueueContact(&store.Contact{
			ID:        id.ToNonAD(),
			Name:      name,
			PushName:  info.PushName,
			UpdatedAt: time.Now().UTC(),
		})
		queued++
		if queued >= contactSyncMax {
			break
		}
	}
	log.Infof("Queued %d contacts from the session store", queued)
}

// Shutdown tears everything down in dependency order: no new events, then
// drain pending writes, then close the stores.
func (a *App) Shutdown() error {
	a.Log.Infof("Shutting down...")
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.cancel()

	a.Supervisor.Shutdown()
	a.Groups.StopRefresher()
	a.Queue.Close()
	a.Tier.Stop()

	if a.Metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Metrics.Stop(ctx); err != nil {
			a.Log.Warnf("Metrics server stop failed: %v", err)
		}
	}

	err := a.Store.Close()
	if serr := a.Session.Close(); err == nil {
		err = serr
	}
	a.Log.Infof("Shutdown complete")
	return err
}
