package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"iodispatch"
	"iodispatch/mp"
)

var config *iodispatch.Config

func init() {
	configFilePath := flag.String("c", "config.toml", "path to configuration file.")
	flag.Parse()
	var err error
	config, err = iodispatch.LoadConfig(*configFilePath)
	if err != nil {
		log.Fatal().Msgf("can't load config: %v", err)
	}
	initLog(config)
}

func initLog(config *iodispatch.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(config.Global.LogLevel)
	if err != nil {
		log.Warn().Msgf("unknown log level %q, using info", config.Global.LogLevel)
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func main() {
	log.Info().Msg("starting echo server...")
	iodispatch.RaiseOpenFilesLimit(uint64(config.Dispatcher.MaxConnections) + 64)

	channels, err := iodispatch.NewChannelFactory(config.Tls)
	if err != nil {
		log.Fatal().Msgf("can't init channels: %v", err)
	}
	router, err := iodispatch.NewEventRouter(config.Events)
	if err != nil {
		log.Fatal().Msgf("can't init event router: %v", err)
	}
	defer func() {
		if err := router.Close(); err != nil {
			log.Error().Msgf("got error while closing event router: %v", err)
		}
	}()

	ioQueue := mp.NewRingQueue(config.Dispatcher.QueueCapacity, iodispatch.NewIOEvent)
	ioPub := mp.NewSPSequence(ioQueue.Capacity())
	ioSub := mp.NewMCSequence(ioQueue.Capacity())
	ioPub.Then(ioSub).Then(ioPub)

	dispatcher, err := iodispatch.NewIODispatcher(iodispatch.IODispatcherConfig{
		Server:     config.Server,
		Dispatcher: config.Dispatcher,
		Buffers:    config.Buffers,
		Contexts:   iodispatch.NewContextFactory(channels, config.Buffers),
		Router:     router,
	}, ioQueue, ioPub)
	if err != nil {
		log.Fatal().Msgf("can't start dispatcher: %v", err)
	}

	workers, err := iodispatch.NewWorkerPool(iodispatch.NewWorkerPoolConfig("io", config.Workers))
	if err != nil {
		log.Fatal().Msgf("can't start workers: %v", err)
	}
	workers.AssignAll(dispatcher)
	ioJob := iodispatch.NewIOLoopJob(ioQueue, ioSub, iodispatch.EchoHandler{}, dispatcher)
	workers.AssignAll(ioJob)
	if err = workers.Start(); err != nil {
		log.Fatal().Msgf("can't start workers: %v", err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	log.Info().Msgf("got %s, shutting down", sig)

	workers.Halt()
	if drained := ioJob.Drain(); drained > 0 {
		log.Info().Msgf("closing %d connections left on the i/o ring", drained)
	}
	dispatcher.Close()
	stats := dispatcher.Stats().Snapshot()
	log.Info().Msgf("stopped: %+v", stats)
}
