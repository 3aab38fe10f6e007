package app

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/shelfman/internal/borrow"
	"github.com/hitoshi/shelfman/internal/model"
)

// cli はセッションを使うサブコマンドを実行する。
type cli struct {
	svc   *services
	stdio Stdio
	now   func() time.Time
	in    *bufio.Reader
}

func runCLI(ctx context.Context, cmd Command, svc *services, stdio Stdio, args []string) error {
	c := &cli{svc: svc, stdio: stdio, now: time.Now}

	switch cmd {
	case CommandLogin:
		return c.login(ctx, args)
	case CommandRegister:
		return c.register(ctx, args)
	case CommandLogout:
		return c.logout(ctx)
	case CommandWhoami:
		return c.whoami(args)
	case CommandBooks:
		return c.books(ctx, args)
	case CommandBook:
		return c.book(ctx, args)
	case CommandLoans:
		return c.loans(ctx, args)
	case CommandBorrow:
		return c.borrow(ctx, args)
	case CommandRenew:
		return c.renew(ctx, args)
	case CommandReturn:
		return c.returnLoan(ctx, args)
	case CommandStats:
		return c.stats(ctx, args)
	case CommandUsers:
		return c.users(ctx, args)
	default:
		return fmt.Errorf("unsupported command %q", cmd)
	}
}

func (c *cli) flags(name string) (*flag.FlagSet, *bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stdio.Err)
	asJSON := fs.Bool("json", false, "print raw JSON")
	return fs, asJSON
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs, asJSON := c.flags("login")
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password (read from stdin when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *password == "" {
		pw, err := c.readLine()
		if err != nil {
			return err
		}
		*password = pw
	}

	user, err := c.svc.session.Login(ctx, *username, *password)
	if err != nil {
		return err
	}

	if *asJSON {
		return printJSON(c.stdio.Out, user)
	}
	fmt.Fprintf(c.stdio.Out, "Logged in as %s (%s)\n", user.Username, user.Role)
	return nil
}

func (c *cli) register(ctx context.Context, args []string) error {
	fs, asJSON := c.flags("register")
	var req model.RegisterRequest
	fs.StringVar(&req.Username, "u", "", "username")
	fs.StringVar(&req.Email, "email", "", "email address")
	fs.StringVar(&req.Phone, "phone", "", "phone number")
	fs.StringVar(&req.RealName, "name", "", "real name")
	fs.StringVar(&req.Password, "p", "", "password (read from stdin with its confirmation when omitted)")
	fs.StringVar(&req.ConfirmPassword, "confirm", "", "password confirmation (defaults to -p)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if req.Password == "" {
		pw, err := c.readLine()
		if err != nil {
			return err
		}
		confirm, err := c.readLine()
		if err != nil {
			return err
		}
		req.Password, req.ConfirmPassword = pw, confirm
	} else if req.ConfirmPassword == "" {
		req.ConfirmPassword = req.Password
	}

	user, err := c.svc.session.Register(ctx, req)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(c.stdio.Out, user)
	}
	fmt.Fprintf(c.stdio.Out, "Registered %s. Log in with: shelfman login -u %s\n", user.Username, user.Username)
	return nil
}

func (c *cli) logout(ctx context.Context) error {
	wasLoggedIn := c.svc.session.Authenticated()
	if err := c.svc.session.Logout(ctx); err != nil {
		return err
	}
	if wasLoggedIn {
		fmt.Fprintln(c.stdio.Out, "Logged out")
	} else {
		fmt.Fprintln(c.stdio.Out, "Not logged in")
	}
	return nil
}

func (c *cli) whoami(args []string) error {
	fs, asJSON := c.flags("whoami")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user := c.svc.session.CurrentUser()
	if user == nil {
		return model.NewSessionExpiredError(nil)
	}

	if *asJSON {
		return printJSON(c.stdio.Out, user)
	}
	fmt.Fprintf(c.stdio.Out, "%s (id=%d, role=%s)\n", user.Username, user.ID, user.Role)
	return nil
}

func (c *cli) books(ctx context.Context, args []string) error {
	fs, asJSON := c.flags("books")
	var q model.BookQuery
	fs.StringVar(&q.Keyword, "keyword", "", "title, author or ISBN keyword")
	fs.Int64Var(&q.CategoryID, "category", 0, "category id")
	fs.IntVar(&q.Page, "page", 1, "page number")
	fs.IntVar(&q.Size, "size", 10, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	page, err := c.svc.books.List(ctx, q)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(c.stdio.Out, page)
	}

	tw := newTable(c.stdio.Out)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tAVAILABLE\tCATEGORY")
	for _, b := range page.Records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%s\n", b.ID, b.Title, b.Author, b.AvailableStock, b.TotalStock, b.CategoryName)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printPageFooter(c.stdio.Out, page)
	return nil
}

func (c *cli) loans(ctx context.Context, args []string) error {
	fs, asJSON := c.flags("loans")
	all := fs.Bool("all", false, "list every user's loans (admin)")
	status := fs.String("status", "", "borrowing, returned, overdue or renewed")
	var q model.LoanQuery
	fs.Int64Var(&q.UserID, "user", 0, "filter by user id (with -all)")
	fs.IntVar(&q.Page, "page", 1, "page number")
	fs.IntVar(&q.Size, "size", 10, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *status != "" {
		s, err := parseLoanStatus(*status)
		if err != nil {
			return err
		}
		q.Status = &s
	}

	var (
		page *model.PageResult[model.LoanRecord]
		err  error
	)
	if *all {
		page, err = c.svc.loans.All(ctx, q)
	} else {
		q.UserID = 0
		page, err = c.svc.loans.Mine(ctx, q)
	}
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(c.stdio.Out, page)
	}

	policy := c.svc.policy
	now := c.now()

	tw := newTable(c.stdio.Out)
	fmt.Fprintln(tw, "ID\tBOOK\tDUE\tSTATUS\tRENEWS\tRENEW\tRETURN\tOVERDUE DAYS")
	for _, r := range page.Records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d/%d\t%s\t%s\t%d\n",
			r.ID, bookLabel(r), formatInstant(policy, r.DueTime),
			policy.DisplayStatus(r, now), r.RenewCount, policy.MaxRenewCount,
			yesNo(policy.CanRenew(r, now)), yesNo(policy.CanReturn(r)),
			policy.OverdueDays(r, now))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := policy.Summarize(page.Records, now)
	fmt.Fprintf(c.stdio.Out, "borrowing %d, overdue %d, returned %d\n", s.Borrowing, s.Overdue, s.Returned)
	printPageFooter(c.stdio.Out, page)
	return nil
}

func (c *cli) borrow(ctx context.Context, args []string) error {
	fs, asJSON := c.flags("borrow")
	bookID := fs.Int64("book", 0, "book id")
	daysArg := fs.String("days", "", "borrow days")
	quantity := fs.Int("quantity", 1, "number of copies")
	remark := fs.String("remark", "", "remark")
	preview := fs.Bool("preview", false, "show the projected due date without borrowing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	days, err := borrow.ParseDays("borrowDays", *daysArg)
	if err != nil {
		return err
	}

	if *preview {
		n, err := c.svc.policy.ValidateBorrowDays(days)
		if err != nil {
			return err
		}
		projected := borrow.ProjectedDueDate(c.now(), n)
		fmt.Fprintf(c.stdio.Out, "Projected due date (estimate, not submitted): %s\n", projected.Format(displayTimeLayout))
		return nil
	}

	loanID, err := c.svc.loans.Borrow(ctx, *bookID, *quantity, days, *remark)
	if err != nil {
		return err
	}
	c.svc.logger.Info("book borrowed",
		slog.Int64("loan_id", loanID),
		slog.Int64("book_id", *bookID),
	)

	record, err := c.svc.loans.Get(ctx, loanID)
	if err != nil {
		// 借用自体は成功しているため、詳細が取れなくてもIDを表示して終える
		if *asJSON {
			return printJSON(c.stdio.Out, map[string]int64{"id": loanID})
		}
		fmt.Fprintf(c.stdio.Out, "Borrowed: loan #%d\n", loanID)
		return nil
	}

	if *asJSON {
		return printJSON(c.stdio.Out, record)
	}
	fmt.Fprintf(c.stdio.Out, "Borrowed %s: loan #%d, due %s\n",
		bookLabel(*record), record.ID, formatInstant(c.svc.policy, record.DueTime))
	return nil
}

func (c *cli) renew(ctx context.Context, args []string) error {
	fs, asJSON := c.flags("renew")
	loanID := fs.Int64("id", 0, "loan id")
	daysArg := fs.String("days", "", "extra days")
	preview := fs.Bool("preview", false, "show the projected due date without renewing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	days, err := borrow.ParseDays("renewDays", *daysArg)
	if err != nil {
		return err
	}
	record, err := c.loadLoan(ctx, *loanID)
	if err != nil {
		return err
	}

	if *preview {
		return c.previewRenew(*record, days)
	}

	if err := c.svc.loans.Renew(ctx, *record, days, c.now()); err != nil {
		return err
	}
	c.svc.logger.Info("loan renewed",
		slog.Int64("loan_id", record.ID),
		slog.Float64("renew_days", days),
	)

	// 延長後の期限はサーバーが決定するため、記録を取得し直して表示する
	renewed, err := c.svc.loans.Get(ctx, record.ID)
	if err != nil {
		c.svc.logger.Warn("failed to fetch renewed record",
			slog.Int64("loan_id", record.ID),
			slog.String("error", err.Error()),
		)
		if *asJSON {
			return printJSON(c.stdio.Out, map[string]int64{"id": record.ID})
		}
		fmt.Fprintf(c.stdio.Out, "Renewed loan #%d\n", record.ID)
		return nil
	}

	if *asJSON {
		return printJSON(c.stdio.Out, renewed)
	}
	fmt.Fprintf(c.stdio.Out, "Renewed loan #%d, due %s\n",
		renewed.ID, formatInstant(c.svc.policy, renewed.DueTime))
	return nil
}

// previewRenew は延長した場合の期限の見込みを表示する。申請は行わない。
func (c *cli) previewRenew(record model.LoanRecord, days float64) error {
	n, err := c.svc.policy.ValidateRenewDays(days)
	if err != nil {
		return err
	}
	if !c.svc.policy.CanRenew(record, c.now()) {
		return model.NewBorrowNotAllowedError("この借用記録は延長できません。")
	}

	fmt.Fprintf(c.stdio.Out, "Current due date: %s\n", formatInstant(c.svc.policy, record.DueTime))
	due, ok := c.svc.policy.DueAt(record)
	if !ok {
		return nil
	}
	fmt.Fprintf(c.stdio.Out, "Projected due date (estimate, not submitted): %s\n",
		borrow.ProjectedDueDate(due, n).Format(displayTimeLayout))
	return nil
}

func (c *cli) returnLoan(ctx context.Context, args []string) error {
	fs, _ := c.flags("return")
	loanID := fs.Int64("id", 0, "loan id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	record, err := c.loadLoan(ctx, *loanID)
	if err != nil {
		return err
	}
	if err := c.svc.loans.Return(ctx, *record); err != nil {
		return err
	}

	if days := c.svc.policy.OverdueDays(*record, c.now()); days > 0 {
		fmt.Fprintf(c.stdio.Out, "Returned loan #%d (%d days overdue)\n", record.ID, days)
		return nil
	}
	fmt.Fprintf(c.stdio.Out, "Returned loan #%d\n", record.ID)
	return nil
}

func (c *cli) stats(ctx context.Context, args []string) error {
	fs, asJSON := c.flags("stats")
	if err := fs.Parse(args); err != nil {
		return err
	}

	stats, err := c.svc.loans.Statistics(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(c.stdio.Out, stats)
	}
	fmt.Fprintf(c.stdio.Out, "total borrowed %d, currently borrowing %d, overdue %d\n",
		stats.TotalBorrowed, stats.CurrentBorrowing, stats.OverdueCount)
	return nil
}

func (c *cli) users(ctx context.Context, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "role":
			return c.updateUser(args[1:], func(id int64, value string) error {
				return c.svc.users.UpdateRole(ctx, id, model.Role(strings.ToUpper(value)))
			})
		case "status":
			return c.updateUser(args[1:], func(id int64, value string) error {
				status, err := strconv.Atoi(value)
				if err != nil {
					return model.NewValidationError("status", "ステータスは0または1で指定してください。")
				}
				return c.svc.users.UpdateStatus(ctx, id, status)
			})
		case "password":
			rest := args[1:]
			if len(rest) == 1 {
				pw, err := c.readLine()
				if err != nil {
					return err
				}
				rest = append(rest, pw)
			}
			return c.updateUser(rest, func(id int64, value string) error {
				return c.svc.users.UpdatePassword(ctx, id, value)
			})
		case "show":
			return c.showUser(ctx, args[1:])
		}
	}

	fs, asJSON := c.flags("users")
	var q model.UserQuery
	fs.StringVar(&q.Keyword, "keyword", "", "username keyword")
	fs.IntVar(&q.Page, "page", 1, "page number")
	fs.IntVar(&q.Size, "size", 10, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	page, err := c.svc.users.List(ctx, q)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(c.stdio.Out, page)
	}

	tw := newTable(c.stdio.Out)
	fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tROLE\tSTATUS")
	for _, u := range page.Records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", u.ID, u.Username, u.Email, u.Role, u.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printPageFooter(c.stdio.Out, page)
	return nil
}

func (c *cli) showUser(ctx context.Context, args []string) error {
	fs, asJSON := c.flags("users show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return model.NewValidationError("args", "ユーザーIDを指定してください。")
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		return model.NewValidationError("id", "ユーザーIDが不正です。")
	}

	user, err := c.svc.users.Get(ctx, id)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(c.stdio.Out, user)
	}
	tw := newTable(c.stdio.Out)
	fmt.Fprintf(tw, "ID\t%d\n", user.ID)
	fmt.Fprintf(tw, "USERNAME\t%s\n", user.Username)
	fmt.Fprintf(tw, "REAL NAME\t%s\n", user.RealName)
	fmt.Fprintf(tw, "EMAIL\t%s\n", user.Email)
	fmt.Fprintf(tw, "PHONE\t%s\n", user.Phone)
	fmt.Fprintf(tw, "ROLE\t%s\n", user.Role)
	fmt.Fprintf(tw, "STATUS\t%d\n", user.Status)
	return tw.Flush()
}

// updateUser は "ID VALUE" の位置引数を解釈して更新を実行する。
func (c *cli) updateUser(args []string, update func(id int64, value string) error) error {
	if len(args) != 2 {
		return model.NewValidationError("args", "ユーザーIDと値を指定してください。")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return model.NewValidationError("id", "ユーザーIDが不正です。")
	}
	if err := update(id, args[1]); err != nil {
		return err
	}
	fmt.Fprintf(c.stdio.Out, "Updated user #%d\n", id)
	return nil
}

// loadLoan は延長・返却の可否判定に使う最新の借用記録を取得する。
func (c *cli) loadLoan(ctx context.Context, id int64) (*model.LoanRecord, error) {
	if id <= 0 {
		return nil, model.NewValidationError("id", "借用IDを指定してください。")
	}
	return c.svc.loans.Get(ctx, id)
}

func bookLabel(r model.LoanRecord) string {
	if r.BookTitle != "" {
		return r.BookTitle
	}
	return "book #" + strconv.FormatInt(r.BookID, 10)
}

// parseLoanStatus はステータス名または数値をLoanStatusに変換する。
func parseLoanStatus(s string) (model.LoanStatus, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n >= int(model.LoanStatusBorrowing) && n <= int(model.LoanStatusRenewed) {
			return model.LoanStatus(n), nil
		}
	}
	for st := model.LoanStatusBorrowing; st <= model.LoanStatusRenewed; st++ {
		if strings.EqualFold(s, st.String()) {
			return st, nil
		}
	}
	return 0, model.NewValidationError("status", "ステータスは borrowing, returned, overdue, renewed のいずれかで指定してください。")
}

// readLine は標準入力から1行読み込む。続けて呼ぶと次の行を返す。
func (c *cli) readLine() (string, error) {
	if c.stdio.In == nil {
		return "", nil
	}
	if c.in == nil {
		c.in = bufio.NewReader(c.stdio.In)
	}
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
