// Command token mints an access token signed with the server's secret, for
// provisioning field clients and supervisors.
//
//	token -sub s-1042 -role student -s <secret>
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/fieldlog/internal/flagx"
	"github.com/dmitrijs2005/fieldlog/internal/server/auth"
	"github.com/dmitrijs2005/fieldlog/internal/server/config"
)

func run(args []string, cfg *config.Config, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("sub", "", "student or supervisor id")
	role := fs.String("role", auth.RoleStudent, "role (student, supervisor)")

	if err := fs.Parse(flagx.FilterArgs(args, []string{"-sub", "-role"})); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("-sub is required")
	}
	if *role != auth.RoleStudent && *role != auth.RoleSupervisor {
		return fmt.Errorf("unknown role %q", *role)
	}

	tok, err := auth.GenerateToken(*subject, *role, []byte(cfg.SecretKey), cfg.AccessTokenValidityDuration)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}

func main() {
	cfg := config.LoadConfig()
	if err := run(os.Args[1:], cfg, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
