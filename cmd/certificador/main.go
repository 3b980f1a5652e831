package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/dcifuentes/fel-certificador/internal/application/auth"
	"github.com/dcifuentes/fel-certificador/internal/application/certify"
	"github.com/dcifuentes/fel-certificador/internal/domain/fel"
	"github.com/dcifuentes/fel-certificador/internal/infrastructure/keystore"
	"github.com/dcifuentes/fel-certificador/internal/infrastructure/postgres"
	"github.com/dcifuentes/fel-certificador/internal/infrastructure/sat"
	"github.com/dcifuentes/fel-certificador/internal/infrastructure/sat/signer"
	httpRouter "github.com/dcifuentes/fel-certificador/internal/interfaces/http"
	"github.com/dcifuentes/fel-certificador/pkg/config"
	"github.com/dcifuentes/fel-certificador/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando certificador")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	dteRepo := postgres.NewDTERepository(pool)
	emisorRepo := postgres.NewEmisorRepository(pool)
	certRepo := postgres.NewCertificacionRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	// Credenciales de firma por emisor: un .p12 por NIT en el directorio.
	credenciales := keystore.NewStore()
	cargadas, errs := credenciales.CargarDirectorio(cfg.Proceso.KeyStoreDir, cfg.Proceso.KeyStorePass)
	for _, e := range errs {
		log.Warn().Err(e).Msg("credencial de firma no cargada")
	}
	log.Info().Int("credenciales", cargadas).Str("dir", cfg.Proceso.KeyStoreDir).Msg("keystore cargado")

	clienteSAT := sat.NewClienteSAT(
		cfg.SAT.BaseURL, cfg.SAT.Usuario, cfg.SAT.Clave,
		cfg.SAT.Timeout, cfg.SAT.TokenTTL,
	)

	certificador := certify.NewService(
		dteRepo, emisorRepo, certRepo, txRunner,
		credenciales, fel.NuevoValidador(), sat.NewXMLBuilderService(),
		signer.NewDigitalSignatureService(), clienteSAT, nil,
		certify.Config{
			Workers:            cfg.Proceso.Workers,
			MaxIntentos:        cfg.Proceso.MaxIntentos,
			RetryBase:          cfg.Proceso.RetryBase,
			RetryMax:           cfg.Proceso.RetryMax,
			PollInterval:       cfg.Proceso.PollInterval,
			TimeoutProceso:     cfg.Proceso.Timeout,
			NITCertificador:    cfg.SAT.NITCertificador,
			NombreCertificador: cfg.SAT.NombreCertificador,
		},
		log,
	)

	// Reanudar documentos que quedaron a medio camino en el último apagado:
	// registros en ENVIANDO, ESPERANDO_RESULTADO o con reintento vencido.
	if n, err := certificador.Reanudar(ctx, 500); err != nil {
		log.Error().Err(err).Msg("reanudación inicial")
	} else if n > 0 {
		log.Info().Int("documentos", n).Msg("documentos reanudados al arrancar")
	}
	certificador.IniciarPoller(ctx)

	authSvc := auth.NewService(emisorRepo, auth.Config{
		Secret:        cfg.JWT.Secret,
		ExpMinutes:    cfg.JWT.Expiration,
		Issuer:        cfg.JWT.Issuer,
		ClaveOperador: cfg.JWT.ClaveOperador,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		Certificador: certificador,
		AuthSvc:      authSvc,
		JWTSecret:    cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")
	cancel() // detiene el poller

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("certificador detenido")
}
