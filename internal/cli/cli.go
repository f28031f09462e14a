// Package cli is the interactive menu over the term index. It reads one
// answer per line from its input and writes prompts and results to its
// output, so it can be driven by a terminal or a script.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/service"
)

// errInputClosed ends the session when the input runs out.
var errInputClosed = errors.New("input closed")

type Config struct {
	DataDir string
	SaveDir string
	// Pause waits for Enter after each action; only useful on a terminal.
	Pause bool
	// Color enables ANSI colors.
	Color bool
}

type CLI struct {
	svc     *service.Service
	in      *bufio.Scanner
	out     io.Writer
	cfg     Config
	ok      *color.Color
	fail    *color.Color
	heading *color.Color
}

func New(svc *service.Service, in io.Reader, out io.Writer, cfg Config) *CLI {
	c := &CLI{
		svc:     svc,
		in:      bufio.NewScanner(in),
		out:     out,
		cfg:     cfg,
		ok:      color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		heading: color.New(color.FgCyan, color.Bold),
	}
	if !cfg.Color {
		c.ok.DisableColor()
		c.fail.DisableColor()
		c.heading.DisableColor()
	}
	return c
}

// Run shows the menu until the user exits, the input ends or ctx is
// cancelled.
func (c *CLI) Run(ctx context.Context) error {
	c.heading.Fprintln(c.out, "=================================================")
	c.heading.Fprintln(c.out, "              BOOK TERM INDEX")
	c.heading.Fprintln(c.out, "=================================================")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.menu()
		choice, err := c.readInt("Select an option: ")
		if err != nil {
			return c.closed(err)
		}

		switch choice {
		case 1:
			err = c.load(ctx)
		case 2:
			err = c.add(ctx)
		case 3:
			err = c.removeTerm(ctx)
		case 4:
			err = c.removePage(ctx)
		case 5:
			err = c.rename(ctx)
		case 6:
			err = c.prefix()
		case 7:
			c.mostFrequent()
		case 8:
			c.display()
		case 9:
			err = c.save()
		case 0:
			fmt.Fprintln(c.out, "Goodbye.")
			return nil
		default:
			fmt.Fprintln(c.out, "Invalid option, try again.")
		}
		if err != nil {
			return c.closed(err)
		}

		if c.cfg.Pause {
			fmt.Fprintln(c.out, "\nPress Enter to continue...")
			if _, err := c.readLine(""); err != nil {
				return c.closed(err)
			}
		}
	}
}

func (c *CLI) closed(err error) error {
	if errors.Is(err, errInputClosed) {
		return nil
	}
	return err
}

func (c *CLI) menu() {
	c.heading.Fprintln(c.out, "\n================== MAIN MENU ====================")
	fmt.Fprintln(c.out, "1.  Load terms from a text file")
	fmt.Fprintln(c.out, "2.  Add or update a term")
	fmt.Fprintln(c.out, "3.  Remove a term")
	fmt.Fprintln(c.out, "4.  Remove a page from a term")
	fmt.Fprintln(c.out, "5.  Rename a term")
	fmt.Fprintln(c.out, "6.  Search terms by prefix")
	fmt.Fprintln(c.out, "7.  Show the most frequent term")
	fmt.Fprintln(c.out, "8.  Show the full index")
	fmt.Fprintln(c.out, "9.  Save the index to a text file")
	fmt.Fprintln(c.out, "0.  Exit")
	c.heading.Fprintln(c.out, "=================================================")
}

func (c *CLI) section(title string) {
	c.heading.Fprintf(c.out, "\n--- %s ---\n", title)
}

func (c *CLI) success(format string, args ...any) {
	c.ok.Fprintf(c.out, "✓ "+format+"\n", args...)
}

func (c *CLI) failure(format string, args ...any) {
	c.fail.Fprintf(c.out, "✗ "+format+"\n", args...)
}

func (c *CLI) emptyIndex() bool {
	if c.svc.IsEmpty() {
		fmt.Fprintln(c.out, "The index is empty.")
		return true
	}
	return false
}

func (c *CLI) load(ctx context.Context) error {
	c.section("LOAD FROM TEXT FILE")
	raw, err := c.readLine("File name (e.g. terms.txt): ")
	if err != nil {
		return err
	}
	name, err := service.FileName(raw)
	if err != nil {
		fmt.Fprintln(c.out, "Invalid file name.")
		return nil
	}
	stats, err := c.svc.LoadFile(ctx, filepath.Join(c.cfg.DataDir, name))
	if err != nil {
		c.failure("Could not load the file: %v", err)
		return nil
	}
	c.success("File loaded: %d term line(s), %d skipped page(s).", stats.Terms, stats.Skipped)
	return nil
}

func (c *CLI) add(ctx context.Context) error {
	c.section("ADD TERM")
	name, err := c.readLine("Term: ")
	if err != nil {
		return err
	}
	if name == "" {
		fmt.Fprintln(c.out, "The term must not be empty.")
		return nil
	}
	page, err := c.readInt("Page number: ")
	if err != nil {
		return err
	}
	if page <= 0 {
		fmt.Fprintln(c.out, "The page number must be positive.")
		return nil
	}
	if err := c.svc.Add(ctx, name, page); err != nil {
		c.failure("%v", err)
		return nil
	}
	c.success("Term added.")

	prompt := "Add more pages to this term? (y/n): "
	for {
		more, err := c.confirm(prompt)
		if err != nil || !more {
			return err
		}
		page, err := c.readInt("Another page number: ")
		if err != nil {
			return err
		}
		if err := c.svc.Add(ctx, name, page); err != nil {
			fmt.Fprintln(c.out, "Invalid page number.")
		} else {
			c.success("Page added to the term.")
		}
		prompt = "Add more pages? (y/n): "
	}
}

func (c *CLI) removeTerm(ctx context.Context) error {
	c.section("REMOVE TERM")
	if c.emptyIndex() {
		return nil
	}
	name, err := c.readLine("Term to remove: ")
	if err != nil {
		return err
	}
	if name == "" {
		fmt.Fprintln(c.out, "The term must not be empty.")
		return nil
	}
	if err := c.svc.Remove(ctx, name); err != nil {
		c.failure("Term not found.")
		return nil
	}
	c.success("Term removed.")
	return nil
}

func (c *CLI) removePage(ctx context.Context) error {
	c.section("REMOVE PAGE FROM TERM")
	if c.emptyIndex() {
		return nil
	}
	name, err := c.readLine("Term: ")
	if err != nil {
		return err
	}
	if name == "" {
		fmt.Fprintln(c.out, "The term must not be empty.")
		return nil
	}
	t, err := c.svc.Get(name)
	if err != nil {
		c.failure("The term %q does not exist.", name)
		return nil
	}
	fmt.Fprintf(c.out, "Current pages for %q: %s\n", name, joinPages(t.Pages()))

	page, err := c.readInt("Page to remove: ")
	if err != nil {
		return err
	}
	if page <= 0 || !t.HasPage(uint32(page)) {
		c.failure("Page %d is not listed under this term.", page)
		return nil
	}
	yes, err := c.confirm(fmt.Sprintf("Remove page %d from %q? (y/n): ", page, name))
	if err != nil {
		return err
	}
	if !yes {
		fmt.Fprintln(c.out, "Cancelled.")
		return nil
	}
	cascaded, err := c.svc.RemovePage(ctx, name, page)
	if err != nil {
		c.failure("%v", err)
		return nil
	}
	c.success("Page removed.")
	if cascaded {
		fmt.Fprintf(c.out, "%q had no pages left and was removed from the index.\n", name)
	}
	return nil
}

func (c *CLI) rename(ctx context.Context) error {
	c.section("RENAME TERM")
	if c.emptyIndex() {
		return nil
	}
	oldName, err := c.readLine("Current term: ")
	if err != nil {
		return err
	}
	if oldName == "" {
		fmt.Fprintln(c.out, "The term must not be empty.")
		return nil
	}
	t, err := c.svc.Get(oldName)
	if err != nil {
		c.failure("Term not found.")
		return nil
	}
	fmt.Fprintf(c.out, "Found: %s\n", t)
	newName, err := c.readLine("New name: ")
	if err != nil {
		return err
	}
	if newName == "" {
		fmt.Fprintln(c.out, "The new name must not be empty.")
		return nil
	}
	_, merged, err := c.svc.Rename(ctx, oldName, newName)
	if err != nil {
		c.failure("Could not rename the term: %v", err)
		return nil
	}
	if merged {
		c.success("Term renamed and merged into the existing %q.", strings.TrimSpace(newName))
		return nil
	}
	c.success("Term renamed.")
	return nil
}

func (c *CLI) prefix() error {
	c.section("SEARCH BY PREFIX")
	if c.emptyIndex() {
		return nil
	}
	prefix, err := c.readLine("Prefix: ")
	if err != nil {
		return err
	}
	if prefix == "" {
		fmt.Fprintln(c.out, "The prefix must not be empty.")
		return nil
	}
	results := c.svc.Prefix(prefix)
	if len(results) == 0 {
		fmt.Fprintf(c.out, "No terms start with '%s'.\n", prefix)
		return nil
	}
	c.heading.Fprintln(c.out, "\n--- RESULTS ---")
	fmt.Fprintf(c.out, "Terms starting with '%s':\n", prefix)
	for _, t := range results {
		fmt.Fprintf(c.out, "• %s\n", t)
	}
	fmt.Fprintf(c.out, "Total: %d term(s)\n", len(results))
	return nil
}

func (c *CLI) mostFrequent() {
	c.section("MOST FREQUENT TERM")
	if c.emptyIndex() {
		return
	}
	t, err := c.svc.MostFrequent()
	if err != nil {
		fmt.Fprintln(c.out, "The index has no terms.")
		return
	}
	fmt.Fprintln(c.out, "Most frequent term:")
	fmt.Fprintf(c.out, "• %s\n", t)
	fmt.Fprintf(c.out, "Appears on %d page(s)\n", t.PageCount())
}

func (c *CLI) display() {
	c.section("FULL INDEX")
	terms := c.svc.All()
	if len(terms) == 0 {
		fmt.Fprintln(c.out, "The index is empty.")
		return
	}
	for _, t := range terms {
		fmt.Fprintln(c.out, t)
	}
	fmt.Fprintf(c.out, "Total: %d term(s)\n", len(terms))
}

func (c *CLI) save() error {
	c.section("SAVE TO TEXT FILE")
	if c.svc.IsEmpty() {
		fmt.Fprintln(c.out, "The index is empty. Nothing to save.")
		return nil
	}
	raw, err := c.readLine("File name (e.g. index.txt): ")
	if err != nil {
		return err
	}
	name, err := service.FileName(raw)
	if err != nil {
		fmt.Fprintln(c.out, "Invalid file name.")
		return nil
	}
	path := filepath.Join(c.cfg.SaveDir, name)
	if err := c.svc.SaveFile(path); err != nil {
		c.failure("Could not save the file: %v", err)
		return nil
	}
	c.success("Index saved to %s", path)
	return nil
}

func (c *CLI) readLine(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(c.out, prompt)
	}
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return "", errInputClosed
	}
	return strings.TrimSpace(c.in.Text()), nil
}

// readInt prompts until the answer is a whole number.
func (c *CLI) readInt(prompt string) (int, error) {
	for {
		line, err := c.readLine(prompt)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(line)
		if err == nil {
			return n, nil
		}
		fmt.Fprintln(c.out, "Please enter a valid number.")
	}
}

func (c *CLI) confirm(prompt string) (bool, error) {
	answer, err := c.readLine(prompt)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes", "s", "si", "sí":
		return true, nil
	}
	return false, nil
}

func joinPages(pages []uint32) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.FormatUint(uint64(p), 10)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
