package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/spellbook/internal/errors"
	"github.com/hpungsan/spellbook/internal/hooks"
	"github.com/hpungsan/spellbook/internal/logging"
	"github.com/hpungsan/spellbook/internal/mcp"
	"github.com/hpungsan/spellbook/internal/ops"
	"github.com/hpungsan/spellbook/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	app := &cli.App{
		Name:      "sb",
		Usage:     "Knowledge vault indexer and session capture",
		Version:   Version,
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "vault", Aliases: []string{"C"}, Value: ".", EnvVars: []string{"SPELLBOOK_VAULT"}, Usage: "Directory inside the vault"},
			&cli.StringFlag{Name: "log-level", Usage: "Override the vault's log_level"},
		},
		Commands: []*cli.Command{
			rebuildCmd(),
			captureCmd(),
			hookCmd(),
			aliasCmd(),
			entitiesCmd(),
			entityCmd(),
			recallCmd(),
			docsCmd(),
			docCmd(),
			sessionsCmd(),
			sessionCmd(),
			statusCmd(),
			serveCmd(),
			mcpCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// withVault opens the vault and its index for the duration of fn.
func withVault(c *cli.Context, fn func(v *ops.Vault) error) error {
	v, err := ops.OpenVault(c.String("vault"))
	if err != nil {
		return outputError(err)
	}
	defer v.Close()
	return fn(v)
}

// newLogger returns a stderr logger at the flag's level, else the vault's.
func newLogger(c *cli.Context, v *ops.Vault) logrus.FieldLogger {
	level := c.String("log-level")
	if level == "" && v != nil {
		level = v.Config.LogLevel
	}
	return logging.Entry(logging.New(level, c.App.ErrWriter))
}

// rebuildCmd creates the rebuild command.
func rebuildCmd() *cli.Command {
	return &cli.Command{
		Name:  "rebuild",
		Usage: "Rebuild the entity index from the vault's documents",
		Action: func(c *cli.Context) error {
			return withVault(c, func(v *ops.Vault) error {
				output, err := ops.Rebuild(c.Context, v, &cliReporter{w: c.App.ErrWriter})
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c.App.Writer, output)
			})
		},
	}
}

// captureCmd creates the capture command.
func captureCmd() *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Capture a transcript's new exchanges and usage (what the stop hook does)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "transcript", Aliases: []string{"t"}, Required: true, Usage: "Path to the session transcript (JSONL)"},
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Session ID; usage is recorded only when set"},
		},
		Action: func(c *cli.Context) error {
			v, err := ops.LoadVault(c.String("vault"))
			if err != nil {
				return outputError(err)
			}
			defer v.Close()

			log := newLogger(c, v)
			if err := v.OpenIndex(); err != nil {
				log.WithError(err).Warn("index unavailable, usage will not be recorded")
			}

			output, err := ops.Capture(c.Context, v, ops.CaptureInput{
				TranscriptPath: c.String("transcript"),
				SessionID:      c.String("session"),
			}, log)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// hookCmd creates the hook command group. Hooks locate the vault from the
// payload's cwd and always exit 0.
func hookCmd() *cli.Command {
	run := func(hook func(c *cli.Context) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			if err := hook(c); err != nil {
				fmt.Fprintf(c.App.ErrWriter, "spellbook hook: %v\n", err)
			}
			return nil
		}
	}
	return &cli.Command{
		Name:  "hook",
		Usage: "Agent runtime lifecycle hooks (JSON on stdin)",
		Subcommands: []*cli.Command{
			{
				Name:  "stop",
				Usage: "Session end: record usage and buffer new exchanges",
				Action: run(func(c *cli.Context) error {
					return hooks.Stop(c.Context, c.App.Reader, c.App.Writer)
				}),
			},
			{
				Name:  "prompt",
				Usage: "New user turn: add vault context",
				Action: run(func(c *cli.Context) error {
					return hooks.Prompt(c.Context, c.App.Reader, c.App.Writer)
				}),
			},
			{
				Name:  "pretool",
				Usage: "Before a dispatch: prefix the agent's reference files",
				Action: run(func(c *cli.Context) error {
					return hooks.Pretool(c.Context, c.App.Reader, c.App.Writer)
				}),
			},
		},
	}
}

// aliasCmd creates the alias command group.
func aliasCmd() *cli.Command {
	return &cli.Command{
		Name:  "alias",
		Usage: "Manage entity aliases",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Map an alias to an entity (kept across rebuilds)",
				ArgsUsage: "<alias> <canonical>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Usage: "Entity type"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return outputError(errors.NewInvalidRequest("usage: sb alias add <alias> <canonical>"))
					}
					return withVault(c, func(v *ops.Vault) error {
						output, err := ops.AddAlias(c.Context, v, ops.AddAliasInput{
							Alias:     c.Args().Get(0),
							Canonical: c.Args().Get(1),
							Type:      c.String("type"),
						})
						if err != nil {
							return outputError(err)
						}
						if !output.Added && output.Existing != "" {
							return outputError(errors.NewAliasConflict(output.Alias, output.Existing))
						}
						return outputJSON(c.App.Writer, output)
					})
				},
			},
			{
				Name:      "resolve",
				Usage:     "Resolve a name to its canonical entity",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					return withVault(c, func(v *ops.Vault) error {
						output, err := ops.Resolve(v.DB, c.Args().First())
						if err != nil {
							return outputError(err)
						}
						return outputJSON(c.App.Writer, output)
					})
				},
			},
			{
				Name:      "list",
				Usage:     "List aliases, optionally for one entity",
				ArgsUsage: "[name]",
				Action: func(c *cli.Context) error {
					return withVault(c, func(v *ops.Vault) error {
						output, err := ops.ListAliases(v.DB, c.Args().First())
						if err != nil {
							return outputError(err)
						}
						return outputJSON(c.App.Writer, output)
					})
				},
			},
		},
	}
}

// entitiesCmd creates the entities command.
func entitiesCmd() *cli.Command {
	return &cli.Command{
		Name:  "entities",
		Usage: "List entities, most recently mentioned first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Usage: "Filter by entity type"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			return withVault(c, func(v *ops.Vault) error {
				output, err := ops.ListEntities(v.DB, ops.ListEntitiesInput{
					Type:   c.String("type"),
					Limit:  c.Int("limit"),
					Offset: c.Int("offset"),
				})
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c.App.Writer, output)
			})
		},
	}
}

// entityCmd creates the entity command.
func entityCmd() *cli.Command {
	return &cli.Command{
		Name:      "entity",
		Usage:     "Show an entity by any of its names",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "doc-limit", Value: ops.DefaultDocLimit, Usage: "Maximum documents to include"},
		},
		Action: func(c *cli.Context) error {
			return withVault(c, func(v *ops.Vault) error {
				output, err := ops.GetEntity(v.DB, ops.GetEntityInput{
					Name:     c.Args().First(),
					DocLimit: c.Int("doc-limit"),
				})
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c.App.Writer, output)
			})
		},
	}
}

// recallCmd creates the recall command.
func recallCmd() *cli.Command {
	return &cli.Command{
		Name:      "recall",
		Usage:     "Find known entities mentioned in text (reads stdin when no args)",
		ArgsUsage: "[text...]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max", Value: ops.DefaultRecallEntities, Usage: "Maximum entities"},
			&cli.IntFlag{Name: "docs", Value: ops.DefaultRecallDocs, Usage: "Documents per entity"},
			&cli.BoolFlag{Name: "text", Usage: "Print the context block instead of JSON"},
		},
		Action: func(c *cli.Context) error {
			text := strings.Join(c.Args().Slice(), " ")
			if text == "" {
				data, err := io.ReadAll(c.App.Reader)
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				text = string(data)
			}
			return withVault(c, func(v *ops.Vault) error {
				output, err := ops.Recall(v.DB, ops.RecallInput{
					Text:        text,
					MaxEntities: c.Int("max"),
					DocsPer:     c.Int("docs"),
				})
				if err != nil {
					return outputError(err)
				}
				if c.Bool("text") {
					_, err := fmt.Fprintln(c.App.Writer, ops.FormatRecall(output.Items))
					return err
				}
				return outputJSON(c.App.Writer, output)
			})
		},
	}
}

// docsCmd creates the docs command.
func docsCmd() *cli.Command {
	return &cli.Command{
		Name:  "docs",
		Usage: "List indexed documents, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
		},
		Action: func(c *cli.Context) error {
			return withVault(c, func(v *ops.Vault) error {
				output, err := ops.ListDocuments(v.DB, c.Int("limit"))
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c.App.Writer, output)
			})
		},
	}
}

// docCmd creates the doc command.
func docCmd() *cli.Command {
	return &cli.Command{
		Name:      "doc",
		Usage:     "Show an indexed document with its body",
		ArgsUsage: "<doc_id>",
		Action: func(c *cli.Context) error {
			return withVault(c, func(v *ops.Vault) error {
				output, err := ops.GetDocument(v, c.Args().First())
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c.App.Writer, output)
			})
		},
	}
}

// sessionsCmd creates the sessions command.
func sessionsCmd() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "List recorded sessions with token totals",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
		},
		Action: func(c *cli.Context) error {
			return withVault(c, func(v *ops.Vault) error {
				output, err := ops.ListSessions(v.DB, c.Int("limit"))
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c.App.Writer, output)
			})
		},
	}
}

// sessionCmd creates the session command.
func sessionCmd() *cli.Command {
	return &cli.Command{
		Name:      "session",
		Usage:     "Show one session with its subagent calls",
		ArgsUsage: "<session_id>",
		Action: func(c *cli.Context) error {
			return withVault(c, func(v *ops.Vault) error {
				output, err := ops.GetSession(v.DB, c.Args().First())
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c.App.Writer, output)
			})
		},
	}
}

// statusCmd creates the status command.
func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show vault, index and buffer state",
		Action: func(c *cli.Context) error {
			return withVault(c, func(v *ops.Vault) error {
				output, err := ops.Status(v)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c.App.Writer, output)
			})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Browse the vault in a web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8420, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			return withVault(c, func(v *ops.Vault) error {
				log := newLogger(c, v)
				srv, err := web.NewServer(v, Version, c.String("bind"), c.Int("port"), log)
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				return web.Run(srv, log)
			})
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			return withVault(c, func(v *ops.Vault) error {
				if unknown := mcp.ValidateDisabledTools(v.Config.DisabledTools); len(unknown) > 0 {
					newLogger(c, v).WithField("tools", unknown).Warn("ignoring unknown disabled_tools")
				}
				return mcp.Run(v, Version)
			})
		},
	}
}

// cliReporter prints one line per rebuilt document.
type cliReporter struct {
	w io.Writer
}

func (r *cliReporter) DocumentIndexed(docID string, entities int) {
	fmt.Fprintf(r.w, "✓ %s (%d entities)\n", docID, entities)
}

func (r *cliReporter) DocumentFailed(docID string, err error) {
	msg := err.Error()
	if sErr, ok := errors.As(err); ok {
		msg = fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message)
	}
	fmt.Fprintf(r.w, "✗ %s: %s\n", docID, msg)
}

// outputJSON writes JSON output.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if sErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
