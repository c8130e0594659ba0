package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/soyeahso/snare/internal/store"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recorded honeypot sessions",
		Long:  "Reads the local session database directly. The gateway does not need to be running.",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsDeleteCmd())

	return cmd
}

func openSessionStore() (*store.SQLiteSessionStore, func(), error) {
	db, err := store.Open(filepath.Join(paths.Data, "snare.db"), log)
	if err != nil {
		return nil, nil, fmt.Errorf("open session database: %w", err)
	}
	return store.NewSQLiteSessionStore(db), func() { db.Close() }, nil
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently active first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, closeDB, err := openSessionStore()
			if err != nil {
				return err
			}
			defer closeDB()

			all, err := sessions.List()
			if err != nil {
				return err
			}
			if len(all) == 0 {
				cmd.Println("no sessions recorded")
				return nil
			}
			for _, s := range all {
				cmd.Printf("%-30s %-12s %3d msgs  %2d intel  confidence %.2f\n",
					s.ID, s.Phase(), s.TotalMessages(), s.Intelligence.Total(), s.ScamConfidence)
			}
			return nil
		},
	}
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session with its transcript and extracted intelligence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, closeDB, err := openSessionStore()
			if err != nil {
				return err
			}
			defer closeDB()

			s, err := sessions.Get(args[0])
			if err != nil {
				return err
			}
			if s == nil {
				return fmt.Errorf("session %q not found", args[0])
			}

			cmd.Printf("session:    %s\n", s.ID)
			cmd.Printf("phase:      %s\n", s.Phase())
			cmd.Printf("detected:   %v (confidence %.2f)\n", s.ScamDetected, s.ScamConfidence)
			cmd.Printf("engaged:    %v\n", s.AgentEngaged)
			cmd.Printf("concluded:  %v (callback sent %v)\n", s.Concluded, s.CallbackSent)
			cmd.Printf("messages:   %d\n", s.TotalMessages())

			if !s.Intelligence.Empty() {
				cmd.Println("\nintelligence:")
				for _, v := range s.Intelligence.PaymentHandles {
					cmd.Printf("  payment handle  %s\n", v)
				}
				for _, v := range s.Intelligence.PhoneNumbers {
					cmd.Printf("  phone number    %s\n", v)
				}
				for _, v := range s.Intelligence.BankAccounts {
					cmd.Printf("  bank account    %s\n", v)
				}
				for _, v := range s.Intelligence.Links {
					cmd.Printf("  link            %s\n", v)
				}
				for _, v := range s.Intelligence.Keywords {
					cmd.Printf("  keyword         %s\n", v)
				}
			}

			if len(s.Messages) > 0 {
				cmd.Println("\ntranscript:")
				for _, m := range s.Messages {
					cmd.Printf("  [%3d] %-8s %s\n", m.Seq, m.Sender, m.Text)
				}
			}
			return nil
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, closeDB, err := openSessionStore()
			if err != nil {
				return err
			}
			defer closeDB()

			deleted, err := sessions.Delete(args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("session %q not found", args[0])
			}
			cmd.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
