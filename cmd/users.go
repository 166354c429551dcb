package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"fxcalsync/internal/google"
	"fxcalsync/internal/models"
	"fxcalsync/internal/userstore"
)

func usersCommand() *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage subscribed users.",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Subscribe a user, or change an existing user's preferences.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true, Usage: "The user's Google account email."},
					&cli.StringSliceFlag{Name: "impact", Value: cli.NewStringSlice(string(models.ImpactHigh)), Usage: "Impact levels to sync (High, Medium)."},
					&cli.StringSliceFlag{Name: "currency", Value: cli.NewStringSlice("USD", "EUR", "GBP"), Usage: "Currency codes to sync."},
					&cli.StringFlag{Name: "refresh-token", Usage: "Store this refresh token instead of running the consent flow."},
					&cli.StringFlag{Name: "redirect-url", Value: google.OutOfBandRedirect, Usage: "OAuth redirect URL registered for the client."},
					&cli.BoolFlag{Name: "reauth", Usage: "Run the consent flow even if the user already has a token."},
				},
				Action: addUser,
			},
			{
				Name:  "list",
				Usage: "List subscribed users and their preferences.",
				Action: func(c *cli.Context) error {
					cfg, _, err := loadConfig(c)
					if err != nil {
						return err
					}
					store, err := userstore.Open(c.Context, cfg.DBFile)
					if err != nil {
						return err
					}
					defer store.Close()

					users, err := store.ListUsers(c.Context)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "EMAIL\tIMPACTS\tCURRENCIES\tTOKEN")
					for _, u := range users {
						token := "yes"
						if u.RefreshToken == "" {
							token = "no"
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Identity, userstore.EncodeImpacts(u.Impacts), userstore.EncodeCurrencies(u.Currencies), token)
					}
					return w.Flush()
				},
			},
			{
				Name:      "remove",
				Usage:     "Unsubscribe a user.",
				ArgsUsage: "<email>",
				Action: func(c *cli.Context) error {
					email := strings.TrimSpace(c.Args().First())
					if email == "" {
						return errors.New("email argument is required")
					}
					cfg, logger, err := loadConfig(c)
					if err != nil {
						return err
					}
					store, err := userstore.Open(c.Context, cfg.DBFile)
					if err != nil {
						return err
					}
					defer store.Close()

					if err := store.Delete(c.Context, email); err != nil {
						return fmt.Errorf("failed to remove %s: %w", email, err)
					}
					logger.Info("Removed user.", "user", email)
					return nil
				},
			},
		},
	}
}

func addUser(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	impacts, err := parseImpacts(c.StringSlice("impact"))
	if err != nil {
		return err
	}
	currencies := models.NewCurrencySet(splitValues(c.StringSlice("currency"))...)
	if currencies.Len() == 0 {
		return errors.New("at least one currency is required")
	}

	store, err := userstore.Open(c.Context, cfg.DBFile)
	if err != nil {
		return err
	}
	defer store.Close()

	email := strings.TrimSpace(c.String("email"))
	user := models.UserPreference{
		Identity:     email,
		RefreshToken: strings.TrimSpace(c.String("refresh-token")),
		Impacts:      impacts,
		Currencies:   currencies,
	}

	_, getErr := store.Get(c.Context, email)
	exists := getErr == nil
	if getErr != nil && !errors.Is(getErr, userstore.ErrNotFound) {
		return getErr
	}

	if user.RefreshToken == "" && (!exists || c.Bool("reauth")) {
		oauthConfig, err := google.OAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, c.String("redirect-url"))
		if err != nil {
			return err
		}
		logger.Info("Starting Google authentication flow.", "user", email)
		fmt.Fprintf(c.App.Writer, "Sign in as %s at the following link, then paste the authorization code:\n%v\n", email, google.AuthCodeURL(oauthConfig, "fxcalsync"))
		fmt.Fprint(c.App.Writer, "Enter Authorization Code: ")

		authCode, _ := bufio.NewReader(c.App.Reader).ReadString('\n')
		authCode = strings.TrimSpace(authCode)
		if authCode == "" {
			return errors.New("no authorization code entered")
		}
		token, err := google.TokenFromWeb(c.Context, oauthConfig, authCode)
		if err != nil {
			return fmt.Errorf("unable to retrieve token from web: %w", err)
		}
		user.RefreshToken = token.RefreshToken
	}

	if err := store.Upsert(c.Context, user); err != nil {
		return err
	}
	logger.Info("Saved user.", "user", email,
		"impacts", userstore.EncodeImpacts(impacts),
		"currencies", userstore.EncodeCurrencies(currencies),
		"updated", exists)
	return nil
}

// parseImpacts accepts High and Medium; Low events are never synced.
func parseImpacts(values []string) (models.ImpactSet, error) {
	set := models.NewImpactSet()
	for _, v := range splitValues(values) {
		impact, ok := models.ParseImpact(v)
		if !ok || impact == models.ImpactLow {
			return nil, fmt.Errorf("unsupported impact %q, use High or Medium", v)
		}
		set[impact] = struct{}{}
	}
	if set.Len() == 0 {
		return nil, errors.New("at least one impact level is required")
	}
	return set, nil
}

// splitValues flattens repeated and comma separated flag values.
func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
