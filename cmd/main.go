package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/loom-ai/loom/internal/config"
	"github.com/loom-ai/loom/internal/handlers"
	"github.com/loom-ai/loom/internal/infrastructure/redis"
	"github.com/loom-ai/loom/internal/middleware"
	"github.com/loom-ai/loom/internal/services/account"
	"github.com/loom-ai/loom/internal/services/artifact"
	"github.com/loom-ai/loom/internal/services/generate"
	"github.com/loom-ai/loom/internal/services/vectorstore"
	"github.com/loom-ai/loom/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found - using process environment")
	}
	zerolog.SetGlobalLevel(config.GetLogLevel())

	st, err := store.Open(config.GetDatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	sup := artifact.NewSupervisor(4, 64)
	defer sup.Close()

	h := handlers.New(
		account.NewService(st, redis.NewService()),
		artifact.NewService(st, sup),
		vectorstore.NewService(st),
		generate.NewService(nil),
	)

	server := &http.Server{
		Addr:    config.GetEnvOrDefault("LISTEN_ADDR", ":8080"),
		Handler: setupRouter(h),
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("Shutting down")
	h.Sessions().CloseAll("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// account + token
	r.HandleFunc("/auth/register", h.HandleRegister).Methods(http.MethodPost)
	r.Handle("/auth/token", middleware.RateLimit("token")(http.HandlerFunc(h.HandleToken))).Methods(http.MethodPost)
	r.Handle("/auth/apikey", middleware.RequireQueryToken(http.HandlerFunc(h.HandleSetAPIKey))).Methods(http.MethodPost)

	// run streaming: auth failures surface as in-band frames
	r.Handle("/ws/assistant/stream", middleware.PopulateUser(http.HandlerFunc(h.HandleAssistantStream)))

	// artifacts
	r.Handle("/artifacts", middleware.RequireQueryToken(http.HandlerFunc(h.HandleListArtifacts))).Methods(http.MethodGet)
	r.Handle("/artifacts/{file_id}/download", middleware.RequireQueryToken(http.HandlerFunc(h.HandleDownloadArtifact))).Methods(http.MethodGet)

	// vector stores + status streams
	sse := middleware.RateLimit("sse")
	r.Handle("/vector_stores", middleware.RequireQueryToken(http.HandlerFunc(h.HandleCreateVectorStore))).Methods(http.MethodPost)
	r.Handle("/vector_stores", middleware.RequireQueryToken(http.HandlerFunc(h.HandleListVectorStores))).Methods(http.MethodGet)
	r.Handle("/vector_stores/{id}", middleware.RequireQueryToken(http.HandlerFunc(h.HandleGetVectorStore))).Methods(http.MethodGet)
	r.Handle("/vector_stores/{id}", middleware.RequireQueryToken(http.HandlerFunc(h.HandleDeleteVectorStore))).Methods(http.MethodDelete)
	r.Handle("/vector_stores/{id}/file_batches", middleware.RequireQueryToken(http.HandlerFunc(h.HandleCreateFileBatch))).Methods(http.MethodPost)
	r.Handle("/vector_stores/{id}/status", sse(middleware.RequireQueryToken(http.HandlerFunc(h.HandleVectorStoreStatus)))).Methods(http.MethodGet)
	r.Handle("/vector_stores/{id}/batches/{batch_id}/status", sse(middleware.RequireQueryToken(http.HandlerFunc(h.HandleBatchStatus)))).Methods(http.MethodGet)

	// generation helpers
	r.Handle("/generate/{kind}", middleware.RateLimit("generate")(middleware.RequireQueryToken(http.HandlerFunc(h.HandleGenerate)))).Methods(http.MethodPost)

	return r
}
