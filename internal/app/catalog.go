package app

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/hitoshi/shelfman/internal/model"
)

// book は管理者向けの図書の登録・更新・削除を実行する。
//
//	book add -isbn ISBN -title TITLE -author AUTHOR -category ID [flags]
//	book update -id ID [flags]
//	book delete -id ID
func (c *cli) book(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return model.NewValidationError("args", "add, update, delete のいずれかを指定してください。")
	}

	switch args[0] {
	case "add":
		return c.addBook(ctx, args[1:])
	case "update":
		return c.updateBook(ctx, args[1:])
	case "delete":
		return c.deleteBook(ctx, args[1:])
	default:
		return model.NewValidationError("args", "add, update, delete のいずれかを指定してください。")
	}
}

// bookFlags は図書の各項目をフラグとして登録する。
func bookFlags(fs *flag.FlagSet, req *model.BookRequest) {
	fs.StringVar(&req.Isbn, "isbn", "", "ISBN")
	fs.StringVar(&req.Title, "title", "", "title")
	fs.StringVar(&req.Author, "author", "", "author")
	fs.StringVar(&req.Publisher, "publisher", "", "publisher")
	fs.StringVar(&req.PublishDate, "published", "", "publish date (YYYY-MM-DD)")
	fs.Int64Var(&req.CategoryID, "category", 0, "category id")
	fs.Float64Var(&req.Price, "price", 0, "price")
	fs.IntVar(&req.TotalStock, "stock", 0, "total stock")
	fs.StringVar(&req.CoverURL, "cover", "", "cover image URL")
	fs.StringVar(&req.Description, "desc", "", "description")
	fs.IntVar(&req.Status, "status", 1, "1 (listed) or 0 (unlisted)")
}

func (c *cli) addBook(ctx context.Context, args []string) error {
	fs, asJSON := c.flags("book add")
	var req model.BookRequest
	bookFlags(fs, &req)
	if err := fs.Parse(args); err != nil {
		return err
	}

	book, err := c.svc.books.Create(ctx, req)
	if err != nil {
		return err
	}
	c.svc.logger.Info("book created", slog.Int64("book_id", book.ID))

	if *asJSON {
		return printJSON(c.stdio.Out, book)
	}
	fmt.Fprintf(c.stdio.Out, "Added book #%d: %s\n", book.ID, book.Title)
	return nil
}

// updateBook は既存の図書を取得し、指定されたフラグの項目だけを置き換えて保存する。
func (c *cli) updateBook(ctx context.Context, args []string) error {
	fs, asJSON := c.flags("book update")
	id := fs.Int64("id", 0, "book id")
	var changes model.BookRequest
	bookFlags(fs, &changes)
	if err := fs.Parse(args); err != nil {
		return err
	}

	current, err := c.svc.books.Get(ctx, *id)
	if err != nil {
		return err
	}
	req := model.RequestFrom(*current)
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "isbn":
			req.Isbn = changes.Isbn
		case "title":
			req.Title = changes.Title
		case "author":
			req.Author = changes.Author
		case "publisher":
			req.Publisher = changes.Publisher
		case "published":
			req.PublishDate = changes.PublishDate
		case "category":
			req.CategoryID = changes.CategoryID
		case "price":
			req.Price = changes.Price
		case "stock":
			req.TotalStock = changes.TotalStock
		case "cover":
			req.CoverURL = changes.CoverURL
		case "desc":
			req.Description = changes.Description
		case "status":
			req.Status = changes.Status
		}
	})

	book, err := c.svc.books.Update(ctx, *id, req)
	if err != nil {
		return err
	}
	c.svc.logger.Info("book updated", slog.Int64("book_id", *id))

	if *asJSON {
		return printJSON(c.stdio.Out, book)
	}
	fmt.Fprintf(c.stdio.Out, "Updated book #%d: %s\n", *id, book.Title)
	return nil
}

func (c *cli) deleteBook(ctx context.Context, args []string) error {
	fs, _ := c.flags("book delete")
	id := fs.Int64("id", 0, "book id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := c.svc.books.Delete(ctx, *id); err != nil {
		return err
	}
	c.svc.logger.Info("book deleted", slog.Int64("book_id", *id))
	fmt.Fprintf(c.stdio.Out, "Deleted book #%d\n", *id)
	return nil
}
