package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/entityflow/internal/auth"
)

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminHashPasswordCmd)
	adminCmd.AddCommand(adminCreateUserCmd)
	adminCmd.AddCommand(adminResetPasswordCmd)

	adminCreateUserCmd.Flags().Bool("super-admin", false, "grant super_admin on the new account")
	adminCreateUserCmd.Flags().String("email", "", "account email")
	adminCreateUserCmd.Flags().String("role", "", "named role assigned to the account")
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage admin user accounts",
}

var adminHashPasswordCmd = &cobra.Command{
	Use:   "hash-password [plaintext]",
	Short: "Print the bcrypt hash entityflow stores for an admin password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashAdminPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

var adminCreateUserCmd = &cobra.Command{
	Use:   "create-user [username] [password]",
	Short: "Create a new admin user account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps()
		if err != nil {
			return err
		}
		hash, err := auth.HashAdminPassword(args[1])
		if err != nil {
			return err
		}

		superAdmin, _ := cmd.Flags().GetBool("super-admin")
		email, _ := cmd.Flags().GetString("email")
		role, _ := cmd.Flags().GetString("role")

		repo := auth.NewAdminUserRepository(d.db)
		user := &auth.AdminUser{
			Username:     args[0],
			Email:        email,
			PasswordHash: hash,
			IsActive:     true,
			IsAdmin:      true,
			SuperAdmin:   superAdmin,
			Role:         role,
		}
		if err := repo.Create(cmd.Context(), user); err != nil {
			return err
		}
		fmt.Printf("created admin user %s (%s)\n", user.Username, user.UUID)
		return nil
	},
}

var adminResetPasswordCmd = &cobra.Command{
	Use:   "reset-password [username] [new-password]",
	Short: "Reset an admin user's password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps()
		if err != nil {
			return err
		}
		repo := auth.NewAdminUserRepository(d.db)

		existing, err := repo.GetByUsername(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		hash, err := auth.HashAdminPassword(args[1])
		if err != nil {
			return err
		}
		if err := repo.UpdatePasswordHash(cmd.Context(), existing.UUID, hash); err != nil {
			return err
		}
		fmt.Printf("password reset for %s\n", args[0])
		return nil
	},
}
