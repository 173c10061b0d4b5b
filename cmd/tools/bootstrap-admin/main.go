// Command bootstrap-admin seeds or updates an administrator account in the datastore.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"clipriver/internal/models"
	"clipriver/internal/storage"
)

func main() {
	var (
		jsonPath    string
		postgresDSN string
		email       string
		userName    string
		firstName   string
		lastName    string
		password    string
	)

	flag.StringVar(&jsonPath, "json", "", "Path to the JSON datastore (store.json)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&email, "email", "", "Email address for the admin account")
	flag.StringVar(&userName, "username", "admin", "User name for the admin account")
	flag.StringVar(&firstName, "first-name", "Platform", "First name for the admin account")
	flag.StringVar(&lastName, "last-name", "Administrator", "Last name for the admin account")
	flag.StringVar(&password, "password", "", "Password for the admin account")
	flag.Parse()

	if jsonPath == "" && postgresDSN == "" {
		fatalf("either --json or --postgres-dsn must be provided")
	}
	if jsonPath != "" && postgresDSN != "" {
		fatalf("only one datastore option may be provided")
	}
	if strings.TrimSpace(email) == "" {
		fatalf("--email is required")
	}
	if len(password) < 8 {
		fatalf("--password must be at least 8 characters")
	}
	if strings.TrimSpace(userName) == "" {
		fatalf("--username cannot be empty")
	}

	store, err := openStorage(jsonPath, postgresDSN)
	if err != nil {
		fatalf("open datastore: %v", err)
	}
	defer closeStorage(store)

	user, created, err := bootstrapAdmin(store, strings.TrimSpace(email), strings.TrimSpace(userName), strings.TrimSpace(firstName), strings.TrimSpace(lastName), password)
	if err != nil {
		fatalf("bootstrap admin: %v", err)
	}

	state := "updated"
	if created {
		state = "created"
	}
	fmt.Printf("Admin user %s (%s) %s successfully.\n", user.Email, user.UserName, state)
	fmt.Println("Remember to rotate this password after the first login.")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func openStorage(jsonPath, postgresDSN string) (*storage.Storage, error) {
	if jsonPath != "" {
		return storage.NewStorage(jsonPath)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return storage.NewPostgresStorage(ctx, storage.PostgresConfig{DSN: postgresDSN})
}

func closeStorage(store *storage.Storage) {
	type closer interface {
		Close(context.Context) error
	}
	if c, ok := any(store).(closer); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	}
}

func bootstrapAdmin(store *storage.Storage, email, userName, firstName, lastName, password string) (models.User, bool, error) {
	normalizedEmail := strings.ToLower(email)
	for _, existing := range store.ListUsers() {
		if existing.Email == normalizedEmail {
			return promoteAdmin(store, existing, password)
		}
	}

	user, err := store.CreateUser(storage.CreateUserParams{
		UserName:  userName,
		FirstName: firstName,
		LastName:  lastName,
		Email:     normalizedEmail,
		Password:  password,
		Role:      models.RoleAdmin,
	})
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

func promoteAdmin(store *storage.Storage, existing models.User, password string) (models.User, bool, error) {
	updated := existing
	if existing.Role != models.RoleAdmin {
		role := models.RoleAdmin
		var err error
		updated, err = store.UpdateUser(existing.ID, storage.UserUpdate{Role: &role})
		if err != nil {
			return models.User{}, false, err
		}
	}

	updated, err := store.SetUserPassword(updated.ID, password)
	if err != nil {
		return models.User{}, false, err
	}
	return updated, false, nil
}
