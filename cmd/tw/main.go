package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tidewater/internal/actions"
	"tidewater/internal/app"
	"tidewater/internal/config"
	"tidewater/internal/db"
	"tidewater/internal/domain"
	"tidewater/internal/engine"
	"tidewater/internal/repo"
	"tidewater/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tw",
	Short: "Tidewater CLI",
	Long: `Tidewater runs a persistent turn-based settlement world.
Core concepts:
- Workspace: the .tidewater directory holding the world database; tidewater.yml tunes the world.
- Turn: one fixed slice of real time (a day by default); all deferred work lands on turn boundaries.
- Actors: inhabitants with a purse of shillings, hunger, health and experience.
- Actions: each actor queues at most one action per turn; it resolves during settlement.
- Settlement: 'tw settle' resolves due actions, sails the vessels, applies hunger and advances the watermark; re-running a settled turn is a no-op.
- Vessels: ferries that advance one leg per turn and can get stuck outside the calm home waters.
- Market: actors list goods for shillings; escrowed at listing time.
- Event feed: the world diary, view with 'tw log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TIDEWATER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(eatCmd())
	rootCmd.AddCommand(drinkCmd())
	rootCmd.AddCommand(marketCmd())
	rootCmd.AddCommand(vesselCmd())
	rootCmd.AddCommand(settleCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var worldID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("%s already exists", cfgPath)
			}
			if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault(worldID)), 0o644); err != nil {
				return err
			}
			eng, conn, err := app.OpenEngine(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			fmt.Printf("Initialized world %s in %s (turn %d)\n", worldID, workspace, eng.CurrentTurn())
			return nil
		},
	}
	cmd.Flags().StringVar(&worldID, "world", "tidewater", "world id")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show world status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tx, err := e.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				watermark, err := e.Repo.Watermark(ctx, tx)
				if err != nil {
					return err
				}
				ids, err := e.Repo.ListActorIDs(ctx, tx)
				if err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"world_id":        e.Config.World.ID,
					"current_turn":    e.CurrentTurn(),
					"settled_through": watermark,
					"actors":          len(ids),
				})
			})
		},
	}
	return cmd
}

func actorCmd() *cobra.Command {
	actor := &cobra.Command{Use: "actor", Short: "Manage actors"}
	actor.AddCommand(actorCreateCmd())
	actor.AddCommand(actorListCmd())
	actor.AddCommand(actorShowCmd())
	actor.AddCommand(actorInventoryCmd())
	actor.AddCommand(actorTasksCmd())
	actor.AddCommand(actorDeleteCmd())
	return actor
}

func actorCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a new actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateActor(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func actorListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListActors(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Shillings", "Hunger", "Health", "Level", "XP"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Name, a.MoneyShillings, fmt.Sprintf("%d/%d", a.Hunger, a.MaxHunger), fmt.Sprintf("%d/%d", a.Health, a.MaxHealth), a.Level, a.Experience})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func actorShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <name-or-id>",
		Short: "Show an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := resolveActor(ctx, e, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func actorInventoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory <name-or-id>",
		Short: "Show an actor's inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := resolveActor(ctx, e, args[0])
				if err != nil {
					return err
				}
				entries, err := e.Repo.ListInventory(ctx, a.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Item", "Quantity"})
				for _, entry := range entries {
					tw.AppendRow(table.Row{entry.ItemKey, entry.Quantity})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func actorTasksCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tasks <name-or-id>",
		Short: "Show an actor's task history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := resolveActor(ctx, e, args[0])
				if err != nil {
					return err
				}
				tasks, err := e.Repo.ListTasksForActor(ctx, a.ID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Action", "Start", "Resolves", "Resolved", "Result"})
				for _, t := range tasks {
					result := ""
					if t.ResultJSON != nil {
						result = *t.ResultJSON
					}
					tw.AppendRow(table.Row{t.ID, t.Action, t.StartTurn, t.ResolveTurn, t.Resolved, result})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of tasks")
	return cmd
}

func actorDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <name-or-id>",
		Short: "Delete an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := resolveActor(ctx, e, args[0])
				if err != nil {
					return err
				}
				return e.DeleteActor(ctx, a.ID)
			})
		},
	}
	return cmd
}

func actionCmd() *cobra.Command {
	action := &cobra.Command{Use: "action", Short: "Queue and inspect actions"}
	action.AddCommand(actionListCmd())
	action.AddCommand(actionScheduleCmd())
	return action
}

func actionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedulable action kinds",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := actions.Kinds()
			if viper.GetBool("json") {
				return printJSON(kinds)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Kind", "Delay (turns)"})
			for _, k := range kinds {
				tw.AppendRow(table.Row{k, actions.Delay(k)})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func actionScheduleCmd() *cobra.Command {
	var actorRef, kind, paramsJSON string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Queue an action for the current turn",
		RunE: func(cmd *cobra.Command, args []string) error {
			var params map[string]any
			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
					return fmt.Errorf("invalid --params: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := resolveActor(ctx, e, actorRef)
				if err != nil {
					return err
				}
				t, err := e.ScheduleAction(ctx, a.ID, kind, params)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&actorRef, "actor", "", "actor name or id")
	cmd.Flags().StringVar(&kind, "action", "", "action kind")
	cmd.Flags().StringVar(&paramsJSON, "params", "", "action parameters as JSON")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func eatCmd() *cobra.Command {
	var actorRef, item string
	var qty int
	cmd := &cobra.Command{
		Use:   "eat",
		Short: "Eat from an actor's inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := resolveActor(ctx, e, actorRef)
				if err != nil {
					return err
				}
				a, err = e.Consume(ctx, a.ID, item, qty)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&actorRef, "actor", "", "actor name or id")
	cmd.Flags().StringVar(&item, "item", "", "item key")
	cmd.Flags().IntVar(&qty, "qty", 1, "quantity")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func drinkCmd() *cobra.Command {
	var actorRef string
	var qty int
	cmd := &cobra.Command{
		Use:   "drink",
		Short: "Drink health potions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := resolveActor(ctx, e, actorRef)
				if err != nil {
					return err
				}
				a, err = e.DrinkPotion(ctx, a.ID, qty)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&actorRef, "actor", "", "actor name or id")
	cmd.Flags().IntVar(&qty, "qty", 1, "quantity")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func marketCmd() *cobra.Command {
	market := &cobra.Command{Use: "market", Short: "Trade on the market"}
	market.AddCommand(marketListCmd())
	market.AddCommand(marketSellCmd())
	market.AddCommand(marketBuyCmd())
	return market
}

func marketListCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListListings(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Seller", "Item", "Quantity", "Price (shillings)"})
				for _, l := range items {
					tw.AppendRow(table.Row{l.ID, l.SellerID, l.ItemKey, l.Quantity, l.PriceShillings})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 50, "number of listings")
	return cmd
}

func marketSellCmd() *cobra.Command {
	var actorRef, item string
	var qty int
	var price int64
	cmd := &cobra.Command{
		Use:   "sell",
		Short: "Put items up for sale",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := resolveActor(ctx, e, actorRef)
				if err != nil {
					return err
				}
				l, err := e.CreateListing(ctx, a.ID, item, qty, price)
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&actorRef, "actor", "", "seller name or id")
	cmd.Flags().StringVar(&item, "item", "", "item key")
	cmd.Flags().IntVar(&qty, "qty", 1, "quantity")
	cmd.Flags().Int64Var(&price, "price", 0, "per-unit price in shillings")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func marketBuyCmd() *cobra.Command {
	var actorRef, listingID string
	var qty int
	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Buy from a listing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := resolveActor(ctx, e, actorRef)
				if err != nil {
					return err
				}
				l, err := e.BuyListing(ctx, a.ID, listingID, qty)
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&actorRef, "actor", "", "buyer name or id")
	cmd.Flags().StringVar(&listingID, "listing", "", "listing id")
	cmd.Flags().IntVar(&qty, "qty", 1, "quantity")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("listing")
	return cmd
}

func vesselCmd() *cobra.Command {
	vessel := &cobra.Command{Use: "vessel", Short: "Inspect and rescue vessels"}
	vessel.AddCommand(vesselListCmd())
	vessel.AddCommand(vesselRescueCmd())
	return vessel
}

func vesselListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List vessels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListVessels(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "At", "Stuck", "Stuck turns", "Last moved"})
				for _, v := range items {
					tw.AppendRow(table.Row{v.Key, v.At(), v.Stuck, v.StuckTurns, v.LastMovedTurn})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func vesselRescueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rescue <key>",
		Short: "Free a stuck vessel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.RescueVessel(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	return cmd
}

func settleCmd() *cobra.Command {
	var turnNo int64
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Run the settlement pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				target := turnNo
				if !cmd.Flags().Changed("turn") {
					target = e.CurrentTurn()
				}
				if target > e.CurrentTurn() {
					return fmt.Errorf("cannot settle future turn %d (current %d)", target, e.CurrentTurn())
				}
				if err := e.Settle(ctx, target); err != nil {
					return err
				}
				fmt.Printf("Settled through turn %d\n", target)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&turnNo, "turn", 0, "turn to settle (default: current)")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "World event feed"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail the event feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Events.Recent(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Turn", "Type", "Title"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.Turn, evt.Type, evt.Title})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			e, conn, err := app.OpenEngine(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			authCfg := server.AuthConfig{
				JWTSecret:      os.Getenv("TIDEWATER_JWT_SECRET"),
				EnableDevLogin: devLogin,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("TIDEWATER_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Tidewater API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose /auth/dev/login (local testing only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	e, conn, err := app.OpenEngine(ctx, workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		return fn(ctx, e.Repo)
	})
}

func resolveActor(ctx context.Context, e engine.Engine, ref string) (domain.Actor, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Actor{}, fmt.Errorf("actor is required")
	}
	if a, err := e.Repo.GetActor(ctx, ref); err == nil {
		return a, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Actor{}, err
	}
	a, err := e.Repo.GetActorByName(ctx, ref)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Actor{}, fmt.Errorf("no actor named %q", ref)
	}
	return a, err
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
