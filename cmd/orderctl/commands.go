package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/example/swirly-orders/internal/auth"
	"github.com/example/swirly-orders/internal/command"
	"github.com/example/swirly-orders/internal/config"
	"github.com/example/swirly-orders/internal/domain/order"
	"github.com/example/swirly-orders/internal/infrastructure/store"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

const operatorActor = "orderctl"

func newApp(out io.Writer, cfg *config.Config, open func(context.Context) (*env, error)) *cli.App {
	withEnv := func(run func(c *cli.Context, e *env) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			e, err := open(c.Context)
			if err != nil {
				return err
			}
			defer e.close()
			return run(c, e)
		}
	}

	return &cli.App{
		Name:      "orderctl",
		Usage:     "operate the Swirly order store",
		Writer:    out,
		ErrWriter: out,
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply the PostgreSQL schema migrations",
				Action: func(c *cli.Context) error {
					if cfg.DocumentBackend != config.BackendPostgres {
						return errors.Errorf("migrate needs DOCUMENT_BACKEND=postgres, got %q", cfg.DocumentBackend)
					}
					db, err := store.ConnectPostgres(cfg.DatabaseURL)
					if err != nil {
						return err
					}
					defer db.Close()
					if err := store.MigratePostgres(db.DB); err != nil {
						return err
					}
					fmt.Fprintln(out, "migrations applied")
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "list orders, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "only orders in this status"},
				},
				Action: withEnv(func(c *cli.Context, e *env) error {
					var status order.Status
					if raw := c.String("status"); raw != "" {
						s, err := order.ParseStatus(raw)
						if err != nil {
							return err
						}
						status = s
					}
					orders, err := e.queries.ListAllOrders(c.Context, status)
					if err != nil {
						return err
					}
					printOrders(out, orders, time.Now())
					return nil
				}),
			},
			{
				Name:      "advance",
				Usage:     "move an order to its next status",
				ArgsUsage: "ORDER_ID",
				Action: withEnv(func(c *cli.Context, e *env) error {
					id, err := orderArg(c)
					if err != nil {
						return err
					}
					next, err := e.commands.AdvanceOrder(c.Context, command.AdvanceOrder{OrderID: id, ActorID: operatorActor})
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s is now %s\n", id, next)
					return nil
				}),
			},
			{
				Name:      "set-status",
				Usage:     "move an order to a given status",
				ArgsUsage: "ORDER_ID STATUS",
				Action: withEnv(func(c *cli.Context, e *env) error {
					if c.NArg() != 2 {
						return errors.New("usage: set-status ORDER_ID STATUS")
					}
					id, status := c.Args().Get(0), c.Args().Get(1)
					if err := e.commands.SetOrderStatus(c.Context, command.SetOrderStatus{
						OrderID: id, Status: status, ActorID: operatorActor,
					}); err != nil {
						return err
					}
					fmt.Fprintf(out, "%s set to %s\n", id, status)
					return nil
				}),
			},
			{
				Name:      "history",
				Usage:     "show the status history of an order",
				ArgsUsage: "ORDER_ID",
				Action: withEnv(func(c *cli.Context, e *env) error {
					id, err := orderArg(c)
					if err != nil {
						return err
					}
					entries, err := e.queries.OrderHistory(c.Context, id)
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "STATUS\tBY\tAT")
					for _, h := range entries {
						fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Status, h.UpdatedBy, h.Timestamp.Format(time.RFC3339))
					}
					return tw.Flush()
				}),
			},
			{
				Name:      "remove",
				Usage:     "delete an order from both stores",
				ArgsUsage: "ORDER_ID",
				Action: withEnv(func(c *cli.Context, e *env) error {
					id, err := orderArg(c)
					if err != nil {
						return err
					}
					if err := e.commands.DeleteOrder(c.Context, command.DeleteOrder{OrderID: id}); err != nil {
						return err
					}
					fmt.Fprintf(out, "%s removed\n", id)
					return nil
				}),
			},
			{
				Name:  "token",
				Usage: "issue a signed identity token for testing",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Required: true},
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "role", Value: auth.RoleCustomer},
				},
				Action: func(c *cli.Context) error {
					jwtService, err := newJWTService(cfg)
					if err != nil {
						return err
					}
					token, exp, err := jwtService.IssueToken(c.String("user"), c.String("email"), c.String("role"))
					if err != nil {
						return err
					}
					fmt.Fprintln(out, token)
					fmt.Fprintf(out, "expires %s\n", humanize.Time(exp))
					return nil
				},
			},
		},
	}
}

func orderArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", errors.Errorf("usage: %s ORDER_ID", c.Command.Name)
	}
	return c.Args().First(), nil
}

func printOrders(out io.Writer, orders []*order.Order, now time.Time) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCUSTOMER\tTOTAL\tPLACED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.ID, o.Status, o.CustomerName,
			humanize.CommafWithDigits(o.Total, 2), humanize.RelTime(o.CreatedAt, now, "ago", "from now"))
	}
	_ = tw.Flush()
}
