package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"github.com/waifuisalie/Talking-Buddy/internal/config"
	"github.com/waifuisalie/Talking-Buddy/internal/controller"
	"github.com/waifuisalie/Talking-Buddy/internal/history"
	"github.com/waifuisalie/Talking-Buddy/internal/ipc"
	"github.com/waifuisalie/Talking-Buddy/internal/lifecycle"
	"github.com/waifuisalie/Talking-Buddy/internal/llm"
	"github.com/waifuisalie/Talking-Buddy/internal/monitor"
	"github.com/waifuisalie/Talking-Buddy/internal/notify"
	"github.com/waifuisalie/Talking-Buddy/internal/pipeline"
	"github.com/waifuisalie/Talking-Buddy/internal/statusled"
	"github.com/waifuisalie/Talking-Buddy/internal/stt"
	"github.com/waifuisalie/Talking-Buddy/internal/timerbank"
	"github.com/waifuisalie/Talking-Buddy/internal/tts"
	"github.com/waifuisalie/Talking-Buddy/internal/wake"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cfgFile := cli.StringP("config", "c", "", "Config file path (yaml)")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	wakeMode := cli.StringP("wake-mode", "w", "", "Override wake mode (serial|manual|disabled)")
	model := cli.StringP("model", "m", "", "Override ollama model")
	boot := cli.StringP("boot", "b", "", "Override boot state (deep_sleep|light_sleep|listening)")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	if *wakeMode != "" {
		cfg.Wake.Mode = config.WakeMode(*wakeMode)
	}
	if *model != "" {
		cfg.Ollama.Model = *model
	}
	if *boot != "" {
		cfg.BootState = config.BootState(*boot)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid config", "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded config", "wake", cfg.Wake.Mode, "model", cfg.Ollama.Model, "boot", cfg.BootState)

	hist, err := history.New(cfg.History.MaxEntries, cfg.History.SaveFile)
	if err != nil {
		log.Error("Failed to load history", "err", err)
		os.Exit(1)
	}

	chat, err := llm.New(cfg.Ollama, hist)
	if err != nil {
		log.Error("Failed to init ollama client", "err", err)
		os.Exit(1)
	}

	svc, err := lifecycle.New(cfg.Ollama)
	if err != nil {
		log.Error("Failed to init lifecycle manager", "err", err)
		os.Exit(1)
	}

	rec := pipeline.NewRecorder(cfg.Audio)
	if err := rec.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer rec.Terminate()

	log.Debug("Loaded recorder")

	synth := tts.New(cfg.Piper)
	defer synth.Cleanup()

	// The controller and the pipeline reference each other; the closure
	// breaks the construction cycle.
	var ctrl *controller.Controller
	post := func(ev controller.Event) { ctrl.Post(ev) }

	// One Player owns the speaker device; the chime shares it.
	play := pipeline.NewPlayer()

	pipe := pipeline.New(rec, stt.New(cfg.Whisper), chat, synth, play,
		cfg.Audio.SampleRate, cfg.Piper.TempDir, post)

	src, err := wake.NewSource(cfg.Wake)
	if err != nil {
		log.Error("Failed to init wake source", "err", err)
		os.Exit(1)
	}

	chime := notify.NewChime(cfg.ChimePath, play)

	var feed *monitor.Feed
	if cfg.Monitor.Enabled {
		feed = monitor.New(cfg.Monitor.Addr)
		if err := feed.Start(); err != nil {
			log.Error("Failed to start monitor feed", "err", err)
			os.Exit(1)
		}
		defer feed.Close()
		log.Info("Monitor feed up", "addr", feed.Addr())
	}

	var lamp *statusled.Lamp
	if cfg.LED.Enabled {
		lamp, err = statusled.New(cfg.LED)
		if err != nil {
			log.Error("Failed to init status leds", "err", err)
			os.Exit(1)
		}
		defer lamp.Close()
		lamp.Set(controller.State(cfg.BootState))
	}

	ctrl = controller.New(svc, pipe, timerbank.New(), cfg.Timeouts,
		controller.WithSleepNotify(src.NotifySleeping),
		controller.WithTransitionHook(func(from, to controller.State) {
			if feed != nil {
				feed.Broadcast(string(from), string(to))
			}
			if lamp != nil {
				lamp.Set(to)
			}
			if to == controller.Listening && from != controller.Speaking && from != controller.Processing {
				if err := chime.Play(); err != nil {
					log.Warn("Chime failed", "err", err)
				}
			}
		}),
	)

	if err := src.Start(func(wake.Event) {
		ctrl.Post(controller.Event{Kind: controller.EventWake})
	}); err != nil {
		log.Error("Failed to start wake source", "err", err)
		os.Exit(1)
	}
	defer src.Stop()

	srv, err := ipc.StartServer(cfg.IPCSocket, func(req ipc.Request) ipc.Response {
		switch req.Cmd {
		case "wake":
			// Manual mode goes through the source so the command is a real
			// wake event; other modes post directly.
			if m, ok := src.(*wake.Manual); ok {
				m.Trigger()
			} else {
				ctrl.Post(controller.Event{Kind: controller.EventWake})
			}
			return ipc.Ok()
		case "say":
			if req.Text == "" {
				return ipc.Fail("say needs text")
			}
			ctrl.Post(controller.Event{Kind: controller.EventUtterance, Transcript: req.Text})
			return ipc.Ok()
		case "status":
			return ipc.OkStatus(struct {
				controller.Status
				Service lifecycle.Phase `json:"service"`
			}{ctrl.Status(), svc.Phase()})
		default:
			return ipc.Fail("unknown command %q", req.Cmd)
		}
	})
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	log.Info("Boot up - successful")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Run(ctx, cfg.BootState); err != nil {
		log.Error("Controller stopped", "err", err)
		os.Exit(1)
	}

	log.Info("Shut down")
}
