package main

import (
	"context"
	"crypto/rand"
	stdtls "crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maiserv/llamagate/pkg/catalog"
	"github.com/maiserv/llamagate/pkg/gateway"
	"github.com/maiserv/llamagate/pkg/llamacpp"
	"github.com/maiserv/llamagate/pkg/logging"
	"github.com/maiserv/llamagate/pkg/metrics"
	"github.com/maiserv/llamagate/pkg/middleware"
	gatewaytls "github.com/maiserv/llamagate/pkg/tls"
)

type serveFlags struct {
	port           int
	apiKey         string
	logRequestInfo bool
	chatUI         bool

	modelsDir    string
	defaultModel string

	llamaCommand string
	llamaExecDir string
	llamaHost    string
	llamaPort    int

	backendEnv          map[string]string
	parallel            int
	threads             int
	maxParallelRequests int

	tlsCert  string
	tlsKey   string
	certsDir string
}

func main() {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "llamagate",
		Short: "OpenAI-compatible gateway owning a single llama-server process",
		Long: `llamagate serves many concurrent OpenAI-dialect clients in front of one
llama-server process. It starts the process on demand with the right
configuration, swaps it atomically when a different model is requested and
streams API traffic through.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	cmd.Flags().IntVarP(&flags.port, "port", "p", 5050, "HTTPS listen port")
	cmd.Flags().StringVarP(&flags.apiKey, "api-key", "k", os.Getenv("LLAMAGATE_API_KEY"), "Gateway API key (random if not specified)")
	cmd.Flags().BoolVarP(&flags.logRequestInfo, "log-request-info", "l", false, "Log every handled request")
	cmd.Flags().BoolVar(&flags.chatUI, "chatui", false, "Expose llama-server's chat UI at /chat")
	cmd.Flags().StringVar(&flags.modelsDir, "models-dir", envOr("LLAMAGATE_MODELS_DIR", "models"), "Directory of model configuration JSON files")
	cmd.Flags().StringVar(&flags.defaultModel, "default-model", os.Getenv("LLAMAGATE_DEFAULT_MODEL"), "Alias served when a request names no model")
	cmd.Flags().StringVar(&flags.llamaCommand, "llama-command", envOr("LLAMAGATE_LLAMA_COMMAND", "llama-server"), "llama-server program path")
	cmd.Flags().StringVar(&flags.llamaExecDir, "llama-exec-dir", envOr("LLAMAGATE_LLAMA_EXEC_DIR", "."), "Working directory for llama-server")
	cmd.Flags().StringVar(&flags.llamaHost, "llama-host", "localhost", "Host llama-server binds to")
	cmd.Flags().IntVar(&flags.llamaPort, "llama-port", 8080, "Port llama-server binds to")
	cmd.Flags().StringToStringVar(&flags.backendEnv, "backend-env", nil, "Environment variables injected into llama-server (key=value)")
	cmd.Flags().IntVar(&flags.parallel, "parallel", 1, "Initial backend parallelism")
	cmd.Flags().IntVar(&flags.threads, "threads", llamacpp.ThreadsDefault, "Backend thread count (-1 uses the server default)")
	cmd.Flags().IntVar(&flags.maxParallelRequests, "max-parallel-requests", 16, "Inflight client request ceiling (0 disables)")
	cmd.Flags().StringVar(&flags.tlsCert, "tls-cert", "", "TLS certificate PEM file")
	cmd.Flags().StringVar(&flags.tlsKey, "tls-key", "", "TLS private key PEM file")
	cmd.Flags().StringVar(&flags.certsDir, "certs-dir", "self_signed_certs", "Directory for generated certificates")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runServe(ctx context.Context, flags *serveFlags) error {
	logger := logrus.New()
	log := logging.NewLogrusAdapter(logger)

	apiKey := flags.apiKey
	if apiKey == "" {
		generated, err := randomAPIKey(25)
		if err != nil {
			return err
		}
		apiKey = generated
		log.Infof("generated gateway API key: %s", apiKey)
	}

	cat, err := catalog.Load(flags.modelsDir)
	if err != nil {
		return err
	}
	log.Infof("loaded %d model configurations from %s", len(cat.Definitions()), flags.modelsDir)

	m := metrics.New()

	backend := llamacpp.NewBackend(
		logging.NewLogrusAdapterFromEntry(logger.WithField("component", llamacpp.Name)),
		logging.NewLogrusAdapterFromEntry(logger.WithField("component", "llama-server")),
		flags.llamaCommand,
		flags.llamaExecDir,
		flags.llamaHost,
		flags.llamaPort,
		m,
	)
	controller := llamacpp.NewController(
		ctx,
		logging.NewLogrusAdapterFromEntry(logger.WithField("component", "process-manager")),
		backend,
	)

	settings := gateway.NewSettings(apiKey, flags.defaultModel, flags.backendEnv, flags.parallel, flags.threads)
	selector := gateway.NewSelector(
		logging.NewLogrusAdapterFromEntry(logger.WithField("component", "model-selector")),
		cat, controller, settings, m,
	)
	proxy := gateway.NewProxy(
		logging.NewLogrusAdapterFromEntry(logger.WithField("component", "proxy")),
		backend.Addr(),
	)
	handler := gateway.NewHandler(
		logging.NewLogrusAdapterFromEntry(logger.WithField("component", "gateway")),
		cat, controller, selector, settings, proxy, m.Handler(), flags.chatUI,
	)

	admission := middleware.NewAdmission(log, m, flags.maxParallelRequests)
	requestLog := middleware.RequestLog(log, m, flags.logRequestInfo)
	root := requestLog(admission.Wrap(handler))

	certPath, keyPath, err := gatewaytls.EnsureCertificates(flags.tlsCert, flags.tlsKey, flags.certsDir)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", flags.port),
		Handler: root,
		TLSConfig: &stdtls.Config{
			MinVersion: stdtls.VersionTLS12,
		},
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Infof("serving on https://0.0.0.0:%d", flags.port)
		if err := server.ListenAndServeTLS(certPath, keyPath); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Errorf("server error: %v", err)
		return err
	}
	log.Infof("server shutdown")
	return nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

const apiKeyCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// randomAPIKey generates a key of length n from the charset.
func randomAPIKey(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = apiKeyCharset[int(b)%len(apiKeyCharset)]
	}
	return string(buf), nil
}
