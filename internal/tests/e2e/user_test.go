//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cliphub/apiserver/config"
	"github.com/cliphub/apiserver/internal/server"
	"github.com/cliphub/apiserver/types"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestSessionLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("ana_%d", time.Now().UnixNano())
	password := "testpass123!"

	user, raw, err := registerUser(t, baseURL, username, password)
	if err != nil {
		t.Fatalf("register user: %v", err)
	}
	if user.Username != username {
		t.Fatalf("unexpected username: %q", user.Username)
	}
	if strings.Contains(raw, "password_hash") || strings.Contains(raw, "refresh_token") {
		t.Fatalf("register response leaks secret fields: %s", raw)
	}
	if user.AvatarURL == "" {
		t.Fatalf("expected avatar URL to be set")
	}

	session, err := login(t, baseURL, username, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatalf("expected both tokens to be set")
	}
	if session.AccessToken == session.RefreshToken {
		t.Fatalf("expected distinct tokens")
	}

	rotated, status, err := refresh(t, baseURL, session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("refresh status %d", status)
	}
	if rotated.AccessToken == session.AccessToken || rotated.RefreshToken == session.RefreshToken {
		t.Fatalf("expected rotation to mint a new pair")
	}

	// The original refresh token died on rotation.
	if _, status, _ := refresh(t, baseURL, session.RefreshToken); status != http.StatusUnauthorized {
		t.Fatalf("expected stale refresh token to be rejected, got %d", status)
	}

	if err := logout(t, baseURL, rotated.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// Any outstanding refresh token is dead after logout.
	if _, status, _ := refresh(t, baseURL, rotated.RefreshToken); status != http.StatusUnauthorized {
		t.Fatalf("expected refresh after logout to be rejected, got %d", status)
	}

	// A fresh login opens a new session.
	if _, err := login(t, baseURL, username, password); err != nil {
		t.Fatalf("login after logout: %v", err)
	}
}

type sessionResponse struct {
	User         types.User `json:"user"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
}

func registerUser(t *testing.T, baseURL, username, password string) (types.User, string, error) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("fullName", "Test User")
	_ = writer.WriteField("username", username)
	_ = writer.WriteField("email", fmt.Sprintf("%s@example.com", username))
	_ = writer.WriteField("password", password)

	part, err := writer.CreateFormFile("avatar", "avatar.png")
	if err != nil {
		return types.User{}, "", err
	}
	if _, err := part.Write([]byte("fake avatar bytes")); err != nil {
		return types.User{}, "", err
	}
	if err := writer.Close(); err != nil {
		return types.User{}, "", err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/users/register", &body)
	if err != nil {
		return types.User{}, "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.User{}, "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return types.User{}, "", fmt.Errorf("register status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var user types.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return types.User{}, "", err
	}
	return user, string(raw), nil
}

func login(t *testing.T, baseURL, username, password string) (sessionResponse, error) {
	t.Helper()

	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return sessionResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/users/login", bytes.NewReader(payload))
	if err != nil {
		return sessionResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return sessionResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return sessionResponse{}, fmt.Errorf("login status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return sessionResponse{}, err
	}
	return parsed, nil
}

func refresh(t *testing.T, baseURL, refreshToken string) (types.TokenPair, int, error) {
	t.Helper()

	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return types.TokenPair{}, 0, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/users/refresh-token", bytes.NewReader(payload))
	if err != nil {
		return types.TokenPair{}, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.TokenPair{}, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.TokenPair{}, resp.StatusCode, nil
	}

	var parsed types.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return types.TokenPair{}, resp.StatusCode, err
	}
	return parsed, resp.StatusCode, nil
}

func logout(t *testing.T, baseURL, accessToken string) error {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, baseURL+"/users/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("logout status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func buildPostgresURL(cfg config.Config) string {
	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}
	host := fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port)
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		host,
		cfg.Database.DBName,
		sslmode,
	)
}

func startServer() (*server.Server, error) {
	_ = os.Setenv("ACCESS_TOKEN_SECRET", "test-access-secret")
	_ = os.Setenv("REFRESH_TOKEN_SECRET", "test-refresh-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "cliphub")
	_ = os.Setenv("DB_PASSWORD", "cliphub")
	_ = os.Setenv("DB_NAME", "cliphub")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("STORAGE_BACKEND", "minio")
	_ = os.Setenv("MINIO_ENDPOINT", "localhost:19000")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "cliphub-media")

	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
