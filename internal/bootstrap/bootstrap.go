// Package bootstrap loads configuration, wires the component graph and
// runs the client until a shutdown signal arrives.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	appservices "feelink-client-go/internal/app/services"
	"feelink-client-go/internal/domain/announce"
	"feelink-client-go/internal/domain/device"
	"feelink-client-go/internal/domain/eventbus"
	"feelink-client-go/internal/domain/notify"
	"feelink-client-go/internal/domain/speech"
	"feelink-client-go/internal/gateway"
	platformconfig "feelink-client-go/internal/platform/config"
	platformerrors "feelink-client-go/internal/platform/errors"
	platformlogging "feelink-client-go/internal/platform/logging"
	platformstorage "feelink-client-go/internal/platform/storage"
	pushtransport "feelink-client-go/internal/transport/push"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	configPath string

	config  *platformconfig.Config
	logger  *platformlogging.Logger
	db      *gorm.DB
	bus     *eventbus.Bus
	client  *gateway.Client
	speaker announce.Announcer

	deviceService  *device.Service
	installationID string

	manager    *appservices.ConversationManager
	router     *notify.Router
	pushServer *pushtransport.Server

	closeSpeaker func()
}

// Run starts the whole client lifecycle: configuration, component
// wiring, device registration and the webhook bridge, then blocks until
// SIGINT/SIGTERM.
func Run(ctx context.Context) error {
	state := &appState{}

	if err := executeInitSteps(ctx, InitGraph(), state); err != nil {
		return err
	}

	logger := state.logger
	if state.config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}
	defer logger.Close()
	defer state.manager.Close()
	if state.closeSpeaker != nil {
		defer state.closeSpeaker()
	}

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if state.pushServer != nil {
		group.Go(func() error {
			return state.pushServer.Run(groupCtx)
		})
	}

	logger.InfoTag("Bootstrap", "feelink client running (installation %s)", state.installationID)

	<-signalCtx.Done()
	logger.InfoTag("Bootstrap", "shutdown signal received")
	cancel()

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.InfoTag("Bootstrap", "shutdown complete")
	return nil
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise local database",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initStorageStep,
		},
		{
			ID:        "gateway:init-client",
			Title:     "Initialise backend gateway",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initGatewayStep,
		},
		{
			ID:        "announce:init-speaker",
			Title:     "Initialise announcement speaker",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initAnnouncerStep,
		},
		{
			ID:        "device:ensure-registered",
			Title:     "Ensure device registration",
			DependsOn: []string{"storage:init-database", "gateway:init-client"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   ensureDeviceStep,
		},
		{
			ID:        "session:init-manager",
			Title:     "Initialise conversation manager",
			DependsOn: []string{"gateway:init-client", "announce:init-speaker"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initManagerStep,
		},
		{
			ID:        "notify:init-router",
			Title:     "Initialise notification router",
			DependsOn: []string{"session:init-manager"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initRouterStep,
		},
		{
			ID:        "push:init-bridge",
			Title:     "Initialise webhook bridge",
			DependsOn: []string{"notify:init-router"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initPushStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := platformconfig.NewLoader().WithPath(state.configPath)
	result, err := loader.Load()
	if err != nil {
		return err
	}
	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return err
	}
	state.logger = logger
	state.bus = eventbus.New()

	if state.configPath != "" {
		logger.InfoTag("Bootstrap", "configuration loaded from %s", state.configPath)
	} else {
		logger.InfoTag("Bootstrap", "no config file found, using defaults")
	}
	return nil
}

func initStorageStep(_ context.Context, state *appState) error {
	db, err := platformstorage.Open(state.config.Storage.DSN)
	if err != nil {
		return err
	}
	state.db = db
	return nil
}

func initGatewayStep(_ context.Context, state *appState) error {
	client, err := gateway.New(gateway.Config{
		BaseURL:         state.config.Backend.BaseURL,
		RequestTimeout:  state.config.Backend.RequestTimeout.Std(),
		ReplyTimeout:    state.config.Backend.ReplyTimeout.Std(),
		AppName:         state.config.Backend.AppName,
		DefaultQuestion: state.config.Backend.DefaultQuestion,
		Logger:          state.logger,
	})
	if err != nil {
		return err
	}
	state.client = client
	return nil
}

func initAnnouncerStep(_ context.Context, state *appState) error {
	if !state.config.Announce.Enabled {
		state.speaker = announce.Nop{}
		return nil
	}
	speaker := announce.NewSpeechAnnouncer(announce.SpeechConfig{
		Voice:     state.config.Announce.Voice,
		OutputDir: state.config.Announce.OutputDir,
		KeepFiles: state.config.Announce.KeepFiles,
	}, state.logger)
	state.speaker = speaker
	state.closeSpeaker = speaker.Close
	return nil
}

func ensureDeviceStep(ctx context.Context, state *appState) error {
	state.deviceService = device.NewService(device.Config{
		Repository: platformstorage.NewDeviceRepository(state.db),
		Registrar:  state.client,
		Logger:     state.logger,
		Platform:   state.config.Device.Platform,
		Token:      state.config.Device.Token,
		Tags:       state.config.Device.Tags,
	})

	id, err := state.deviceService.EnsureRegistered(ctx)
	if err != nil {
		return err
	}
	state.installationID = id
	return nil
}

func initManagerStep(_ context.Context, state *appState) error {
	speechCfg := state.config.Speech
	state.manager = appservices.NewConversationManager(appservices.ManagerConfig{
		Gateway: state.client,
		Recognizers: func() speech.Recognizer {
			return speech.NewStreamRecognizer(speech.Config{
				WSURL:          speechCfg.WSURL,
				Language:       speechCfg.Language,
				SampleRate:     speechCfg.SampleRate,
				SilenceTimeout: speechCfg.SilenceTimeout.Std(),
			}, state.logger)
		},
		Announcer:    state.speaker,
		Bus:          state.bus,
		Logger:       state.logger,
		ReplyTimeout: state.config.Backend.RequestTimeout.Std(),
	})
	return nil
}

func initRouterStep(_ context.Context, state *appState) error {
	state.router = notify.NewRouter(notify.RouterConfig{
		Sessions:     state.manager,
		Gateway:      state.client,
		Announcer:    state.speaker,
		Logger:       state.logger,
		ReplyTimeout: state.config.Backend.ReplyTimeout.Std(),
	})
	return nil
}

func initPushStep(_ context.Context, state *appState) error {
	if !state.config.Push.Enabled {
		state.logger.InfoTag("Bootstrap", "webhook bridge disabled")
		return nil
	}
	server, err := pushtransport.NewServer(pushtransport.Config{
		IP:       state.config.Push.IP,
		Port:     state.config.Push.Port,
		Handler:  state.router,
		Logger:   state.logger,
		LogLevel: state.config.Log.Level,
	})
	if err != nil {
		return err
	}
	state.pushServer = server
	return nil
}
