package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/echotools/phonebook/internal/store"
)

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "add <username>",
		Short:   "Create a user",
		Example: `  phonebook user add mluukkai`,
		Args:    cobra.ExactArgs(1),
		RunE:    runUserAdd,
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "befriend <username> <person name>...",
		Short:   "Add persons to a user's friends",
		Example: `  phonebook user befriend mluukkai "Arto Hellas" "Matti Luukkainen"`,
		Args:    cobra.MinimumNArgs(2),
		RunE:    runUserBefriend,
	})

	return cmd
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	u := &store.User{Username: args[0]}
	if err := st.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	logger.Debug("Created user", zap.String("username", u.Username), zap.String("id", u.ID.Hex()))
	fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", u.Username, u.ID.Hex())
	return nil
}

func runUserBefriend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	username, names := args[0], args[1:]

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	ids := make([]primitive.ObjectID, 0, len(names))
	for _, name := range names {
		p, err := st.FindPersonByName(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("person %q not found", name)
		}
		if err != nil {
			return err
		}
		ids = append(ids, p.ID)
	}

	if err := st.AddFriends(ctx, username, ids...); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("user %q not found", username)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added %d friend(s) to %s\n", len(ids), username)
	return nil
}
