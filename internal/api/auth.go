package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"

	"warehub/internal/config"
	"warehub/internal/models"
)

const (
	apiKeyHeaderDefault = "x-api-key"
	actorIDHeader       = "x-actor-id"
	actorRoleHeader     = "x-actor-role"
	clientKeyUnknown    = "unknown"
)

var (
	errMissingAPIKey    = errors.New("missing api key")
	errInvalidAPIKey    = errors.New("invalid api key")
	errMissingActor     = errors.New("missing actor headers")
	errInvalidActor     = errors.New("invalid actor headers")
	errPermissionDenied = errors.New("permission denied")
	errRateLimited      = errors.New("rate limit exceeded")
)

type actorKey struct{}

// ActorFromContext returns the authenticated caller attached by the HTTP
// middleware or the gRPC interceptor.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(models.Actor)
	return actor, ok
}

func withActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// authenticator checks API keys and resolves the actor a client speaks for.
// Clients are trusted to name the actor; their key limits which roles they
// may claim.
type authenticator struct {
	cfg     config.APIAuthConfig
	clients map[string]config.APIClientKey
}

func newAuthenticator(cfg config.APIAuthConfig) *authenticator {
	m := make(map[string]config.APIClientKey, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		m[k.Key] = k
	}
	return &authenticator{cfg: cfg, clients: m}
}

func (a *authenticator) apiKeyHeader() string {
	h := strings.ToLower(strings.TrimSpace(a.cfg.HeaderAPIKey))
	if h == "" {
		return apiKeyHeaderDefault
	}
	return h
}

func (a *authenticator) authenticate(apiKey, actorID, actorRole string) (models.Actor, error) {
	var client *config.APIClientKey
	if a.cfg.Enabled {
		c, err := a.lookupClient(apiKey)
		if err != nil {
			return models.Actor{}, err
		}
		client = &c
	}

	actor, err := parseActor(actorID, actorRole)
	if err != nil {
		return models.Actor{}, err
	}

	if client != nil && len(client.Roles) > 0 && !containsRole(client.Roles, actor.Role) {
		return models.Actor{}, errPermissionDenied
	}
	return actor, nil
}

func (a *authenticator) lookupClient(apiKey string) (config.APIClientKey, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return config.APIClientKey{}, errMissingAPIKey
	}
	for key, client := range a.clients {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return client, nil
		}
	}
	return config.APIClientKey{}, errInvalidAPIKey
}

func parseActor(rawID, rawRole string) (models.Actor, error) {
	rawID = strings.TrimSpace(rawID)
	rawRole = strings.TrimSpace(rawRole)
	if rawRole == "" {
		return models.Actor{}, errMissingActor
	}

	role := models.Role(strings.ToLower(rawRole))
	switch role {
	case models.RoleCustomer, models.RoleTeamAdmin, models.RoleStaff, models.RoleAdmin:
		if rawID == "" {
			return models.Actor{}, errMissingActor
		}
	case models.RoleSystem:
		if rawID == "" {
			return models.SystemActor, nil
		}
	default:
		return models.Actor{}, errInvalidActor
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id < 0 || (id == 0 && role != models.RoleSystem) {
		return models.Actor{}, errInvalidActor
	}
	return models.Actor{ID: id, Role: role}, nil
}

func containsRole(roles []models.Role, role models.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
