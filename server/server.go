// Package server exposes the engine over REST. All vote and completion
// traffic funnels through the one engine instance handed to Start, so the
// HTTP path and the broadcast path can never apply counter math differently.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atomly/atomly/engine"
)

type contextKey string

const userIDKey contextKey = "userID"

// userID extracts the authenticated user from the request context. The jwt
// middleware guarantees it is set on every route it guards.
func userID(r *http.Request) (primitive.ObjectID, bool) {
	id, ok := r.Context().Value(userIDKey).(primitive.ObjectID)
	return id, ok
}

func jwtMiddleware(signingKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		splitToken := strings.Split(authHeader, "Bearer ")
		if len(splitToken) != 2 {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		token, err := jwt.Parse(splitToken[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(signingKey), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}
		rawID, _ := claims["id"].(string)
		id, err := primitive.ObjectIDFromHex(rawID)
		if err != nil {
			http.Error(w, "invalid token subject", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %s\n", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// NewRouter builds the full route table around an engine. Split out from
// Start so tests can drive it with httptest.
func NewRouter(eng *engine.Engine, signingKey string) http.Handler {
	h := &handler{engine: eng}

	r := mux.NewRouter()
	r.HandleFunc("/habits", h.createHabit).Methods(http.MethodPost)
	r.HandleFunc("/habits", h.listHabits).Methods(http.MethodGet)
	r.HandleFunc("/habits/{id}", h.updateHabit).Methods(http.MethodPut)
	r.HandleFunc("/habits/{id}", h.deleteHabit).Methods(http.MethodDelete)
	r.HandleFunc("/habits/{id}/complete", h.completeHabit).Methods(http.MethodPost)
	r.HandleFunc("/habits/{id}/deactivate", h.deactivateHabit).Methods(http.MethodPost)

	r.HandleFunc("/atoms/{id}/vote", h.voteOnAtom).Methods(http.MethodPost)
	r.HandleFunc("/atoms/{id}/vote", h.removeVote).Methods(http.MethodDelete)
	r.HandleFunc("/feed/trending", h.trendingAtoms).Methods(http.MethodGet)

	r.HandleFunc("/leaderboard/daily", h.dailyLeaderboard).Methods(http.MethodGet)
	r.HandleFunc("/leaderboard/total", h.totalLeaderboard).Methods(http.MethodGet)
	r.HandleFunc("/leaderboard/category/{id}", h.categoryLeaderboard).Methods(http.MethodGet)

	r.HandleFunc("/users/{id}/karma", h.userKarma).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/history", h.userHistory).Methods(http.MethodGet)

	return recoveryMiddleware(jwtMiddleware(signingKey, r))
}

// Start blocks serving HTTP until the server fails.
func Start(serverURL, signingKey string, eng *engine.Engine) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", serverURL, err)
	}

	corsOrigins := handlers.AllowedOrigins([]string{"*"})
	corsMethods := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"})
	corsHeaders := handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"})
	corsRouter := handlers.CORS(corsOrigins, corsMethods, corsHeaders)(NewRouter(eng, signingKey))

	loggingRouter := handlers.LoggingHandler(os.Stdout, corsRouter)

	server := &http.Server{
		Handler:      loggingRouter,
		Addr:         u.Host,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	log.Printf("listening on %s", u.Host)
	return server.ListenAndServe()
}
