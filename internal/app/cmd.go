package app

// Command はサブコマンドを表す。
type Command string

const (
	// CommandServe はローカルエージェント（ループバックHTTPサーバー）を起動する。
	CommandServe Command = "serve"
	// CommandLogin はログインしてセッションを保存する。
	CommandLogin Command = "login"
	// CommandRegister は利用者を登録する。
	CommandRegister Command = "register"
	// CommandLogout はセッションを破棄する。
	CommandLogout Command = "logout"
	// CommandWhoami はログイン中のユーザーを表示する。
	CommandWhoami Command = "whoami"
	// CommandBooks は図書を検索する。
	CommandBooks Command = "books"
	// CommandBook は図書を登録・更新・削除する（管理者のみ）。
	CommandBook Command = "book"
	// CommandLoans は借用記録を表示する。
	CommandLoans Command = "loans"
	// CommandBorrow は図書を借用する。
	CommandBorrow Command = "borrow"
	// CommandRenew は借用期限を延長する。
	CommandRenew Command = "renew"
	// CommandReturn は図書を返却する。
	CommandReturn Command = "return"
	// CommandStats は借用統計を表示する。
	CommandStats Command = "stats"
	// CommandUsers はユーザーを管理する（管理者のみ）。
	CommandUsers Command = "users"
	// CommandMigrate はクレデンシャルキャッシュ用のマイグレーションを実行する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はローカルエージェントのヘルスチェックを行う。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
	// CommandUnknown はサポート外のコマンド。
	CommandUnknown Command = ""
)

var commands = map[string]Command{
	"serve":       CommandServe,
	"login":       CommandLogin,
	"register":    CommandRegister,
	"logout":      CommandLogout,
	"whoami":      CommandWhoami,
	"books":       CommandBooks,
	"book":        CommandBook,
	"loans":       CommandLoans,
	"borrow":      CommandBorrow,
	"renew":       CommandRenew,
	"return":      CommandReturn,
	"stats":       CommandStats,
	"users":       CommandUsers,
	"migrate":     CommandMigrate,
	"healthcheck": CommandHealthcheck,
	"help":        CommandHelp,
	"-h":          CommandHelp,
	"--help":      CommandHelp,
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandHelp、サポート外の場合はCommandUnknownを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandHelp
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return CommandUnknown
	}
	return cmd
}

const usage = `Usage: shelfman <command> [flags]

Commands:
  serve         start the local agent on SERVER_HOST:SERVER_PORT
  login         log in (-u USER, password from -p or stdin)
  register      create an account (-u USER, -email ADDR, -phone, -name; password and
                confirmation from -p/-confirm or two stdin lines)
  logout        end the current session
  whoami        show the logged-in user
  books         search books (-keyword, -category, -page, -size)
  book          manage books (admin): book add|update|delete (-id, -isbn, -title,
                -author, -publisher, -published, -category, -price, -stock, -cover,
                -desc, -status)
  loans         list loans (-all, -status, -user, -page, -size)
  borrow        borrow a book (-book ID, -days N, -quantity N, -remark TEXT;
                -preview prints the estimated due date without borrowing)
  renew         extend a loan (-id ID, -days N; -preview prints the estimated
                due date without renewing)
  return        return a loan (-id ID)
  stats         show borrowing statistics (admin)
  users         list users, or: users show ID | users role ID ROLE |
                users status ID 0|1 | users password ID [NEW] (admin)
  migrate       apply credential cache migrations (migrate down to roll back)
  healthcheck   probe the local agent /health endpoint

Most commands accept -json to print raw JSON.
`
