package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/suliportal/suliportal/core"
	"github.com/suliportal/suliportal/core/lunch"
	"github.com/suliportal/suliportal/core/user"
	emailsvc "github.com/suliportal/suliportal/services/email"
	logsvc "github.com/suliportal/suliportal/services/logger"
	notifysvc "github.com/suliportal/suliportal/services/notifier"
	"github.com/suliportal/suliportal/storage/mongodb"
)

const usage = `Usage: admin COMMAND [OPTIONS]

Commands:
  adduser        create a user account
  resetpassword  set a user's password from a terminal prompt
  publishmenu    publish next week's lunch menu and open the order window
  closewindow    close next week's order window and report the order count
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(2)
		}
		log.Fatalf("admin: %+v", err)
	}
}

type app struct {
	conf     *core.Config
	logger   core.Logger
	db       *mongodb.DB
	usrSvc   user.ServiceInterface
	lunchSvc *lunch.Service
}

func run(cmd string, args []string) error {
	conf := core.NewConfig()
	stdLogger := log.New(os.Stdout, fmt.Sprintf("%s Admin : ", conf.AppName), log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)

	ctx, cancel := context.WithTimeout(context.Background(), conf.Database.Timeout)
	defer cancel()

	db, err := mongodb.Open(ctx, conf)
	if err != nil {
		return errors.Wrap(err, "connecting to database")
	}
	defer db.Close(context.Background())
	if err = db.EnsureIndexes(ctx); err != nil {
		return errors.Wrap(err, "ensuring database indexes")
	}

	validate, translator := core.NewValidators()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(conf, logger)
	core.ParseEmailTemplates(conf, logger)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	var notifier core.Notifier
	if conf.OpsWebhookURL != "" {
		notifier = notifysvc.NewWebhookNotifier(conf, logger)
	} else {
		notifier = notifysvc.NewLoggerNotifier(logger)
	}

	usrRepo := mongodb.NewUserRepository(db)
	menuRepo := mongodb.NewMenuRepository(db)
	orderRepo := mongodb.NewOrderRepository(db)

	a := &app{
		conf:     conf,
		logger:   logger,
		db:       db,
		usrSvc:   user.NewService(usrRepo, mailSvc, conf),
		lunchSvc: lunch.NewService(menuRepo, orderRepo, usrRepo, mailSvc, notifier, conf, logger),
	}

	switch cmd {
	case "adduser":
		return a.addUser(args, validate)
	case "resetpassword":
		return a.resetPassword(args)
	case "publishmenu":
		return a.publishMenu(args, validate)
	case "closewindow":
		return a.closeWindow(args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return errors.Errorf("unknown command %q", cmd)
	}
}

func (a *app) addUser(args []string, validate *validator.Validate) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	name := fs.String("name", "", "full name (required)")
	uname := fs.String("username", "", "username")
	email := fs.String("email", "", "email address")
	badge := fs.String("badge", "", "NFC badge id")
	roles := fs.String("roles", user.RoleStudent, "comma-separated roles")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pwd, err := promptPassword(true)
	if err != nil {
		return err
	}

	nu := user.NewUser{
		Name:            *name,
		Username:        *uname,
		Email:           *email,
		BadgeID:         *badge,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           strings.Split(*roles, ","),
	}
	ctx := context.Background()
	if err = nu.Validate(ctx, validate, a.usrSvc); err != nil {
		return err
	}

	usr, err := a.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	fmt.Printf("user created: %s (%s)\n", usr.Username, usr.ID)
	return nil
}

func (a *app) resetPassword(args []string) error {
	fs := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	uname := fs.String("username", "", "username or email (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *uname == "" {
		fs.Usage()
		return errors.New("-username is required")
	}

	ctx := context.Background()
	usr, err := a.usrSvc.GetByUsernameOrEmail(ctx, *uname)
	if err != nil {
		return err
	}

	pwd, err := promptPassword(true)
	if err != nil {
		return err
	}
	if _, err = a.usrSvc.Update(ctx, usr.ID, user.UpdateUser{Password: pwd, PasswordConfirm: pwd}); err != nil {
		return err
	}
	fmt.Printf("password updated for %s\n", usr.Username)
	return nil
}

// publishMenu reads next week's menu from a JSON file:
//
//	{"days": [[{"id": "a", "label": "Chicken paprikash"}], [], ...]}
func (a *app) publishMenu(args []string, validate *validator.Validate) error {
	fs := flag.NewFlagSet("publishmenu", flag.ContinueOnError)
	file := fs.String("file", "", "path to the menu JSON file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		fs.Usage()
		return errors.New("-file is required")
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		return errors.Wrapf(err, "reading %s", *file)
	}
	var nm lunch.NewMenu
	if err = json.Unmarshal(raw, &nm); err != nil {
		return errors.Wrapf(err, "parsing %s", *file)
	}
	if err = nm.Validate(validate); err != nil {
		return err
	}

	menu, err := a.lunchSvc.PublishMenu(context.Background(), nm)
	if err != nil {
		return err
	}
	fmt.Printf("menu published for week %s; order window is open\n", menu.WeekKey())
	return nil
}

func (a *app) closeWindow(args []string) error {
	fs := flag.NewFlagSet("closewindow", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	count, err := a.lunchSvc.CloseWindow(context.Background())
	if err != nil {
		return err
	}
	wk := lunch.NextWeekOf(time.Now(), a.lunchSvc.Location())
	fmt.Printf("order window closed for week %s with %d order(s)\n", wk, count)
	return nil
}

func promptPassword(confirm bool) (string, error) {
	fmt.Print("Password: ")
	pwd, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}

	if confirm {
		fmt.Print("Confirm password: ")
		pwd2, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", errors.Wrap(err, "reading password confirmation")
		}
		if string(pwd) != string(pwd2) {
			return "", errors.New("passwords do not match")
		}
	}
	return string(pwd), nil
}
