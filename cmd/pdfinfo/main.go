// Command pdfinfo prints the document information of PDF files.
//
// Usage:
//
//	pdfinfo [-strict] [-password pw] [-json] file.pdf...
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/term"

	"github.com/ScriptRock/pdfread"
)

var (
	strict   = flag.Bool("strict", false, "treat tolerated format deviations as errors")
	password = flag.String("password", "", "password for encrypted files")
	asJSON   = flag.Bool("json", false, "print one JSON object per file")
	verbose  = flag.Bool("v", false, "log warnings about malformed files")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: pdfinfo [flags] file.pdf...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	failed := false
	for _, name := range flag.Args() {
		info, err := inspect(name, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			failed = true
			continue
		}
		if *asJSON {
			err = json.NewEncoder(os.Stdout).Encode(info)
		} else {
			err = info.print(os.Stdout)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

type fileInfo struct {
	File         string            `json:"file"`
	Version      string            `json:"version,omitempty"`
	Title        string            `json:"title,omitempty"`
	Author       string            `json:"author,omitempty"`
	Subject      string            `json:"subject,omitempty"`
	Keywords     string            `json:"keywords,omitempty"`
	Creator      string            `json:"creator,omitempty"`
	Producer     string            `json:"producer,omitempty"`
	CreationDate *time.Time        `json:"creationDate,omitempty"`
	ModDate      *time.Time        `json:"modDate,omitempty"`
	Custom       map[string]string `json:"custom,omitempty"`
	Pages        int               `json:"pages"`
	Encrypted    bool              `json:"encrypted"`
	OwnerAccess  bool              `json:"ownerAccess,omitempty"`
	XMP          bool              `json:"xmp"`
}

func inspect(name string, logger *slog.Logger) (*fileInfo, error) {
	r, err := pdfread.Open(name, &pdfread.ReaderOptions{
		Strict:   *strict,
		Logger:   logger.With(slog.String("file", name)),
		Password: *password,
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if r.IsEncrypted() {
		if err := unlock(r, name); err != nil {
			return nil, err
		}
	}

	info := &fileInfo{
		File:        name,
		Version:     r.Version(),
		Encrypted:   r.IsEncrypted(),
		OwnerAccess: r.OwnerAuthenticated(),
		Pages:       r.NumPage(),
	}
	if md, err := r.XMPMetadata(); err != nil {
		logger.Warn("unreadable XMP metadata", slog.String("file", name), slog.Any("error", err))
	} else {
		info.XMP = md != nil
	}

	doc, err := r.DocumentInfo()
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return info, nil
	}
	info.Title, _ = doc.Title()
	info.Author, _ = doc.Author()
	info.Subject, _ = doc.Subject()
	info.Keywords, _ = doc.Keywords()
	info.Creator, _ = doc.Creator()
	info.Producer, _ = doc.Producer()
	if t, ok := doc.CreationDate(); ok {
		info.CreationDate = &t
	}
	if t, ok := doc.ModDate(); ok {
		info.ModDate = &t
	}
	for _, k := range doc.Custom() {
		if info.Custom == nil {
			info.Custom = make(map[string]string)
		}
		info.Custom[k] = doc.V.Key(k).Text()
	}
	return info, nil
}

// unlock makes sure the file can be read, asking for a password on the
// terminal if neither the empty password nor -password were accepted.
func unlock(r *pdfread.Reader, name string) error {
	if r.Authenticated() {
		return nil
	}
	// Decrypt reports an unusable security handler before anything is prompted.
	if ok, err := r.Decrypt(nil); err != nil || ok {
		return err
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("%w: password required", pdfread.ErrNotDecrypted)
	}
	for try := 0; try < 3; try++ {
		fmt.Fprintf(os.Stderr, "password for %s: ", name)
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}
		ok, err := r.Decrypt(pw)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: wrong password", pdfread.ErrNotDecrypted)
}

func (info *fileInfo) print(w io.Writer) error {
	line := func(label, value string) error {
		if value == "" {
			return nil
		}
		_, err := fmt.Fprintf(w, "%-14s %s\n", label+":", value)
		return err
	}
	date := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339)
	}
	enc := "no"
	if info.Encrypted {
		enc = "yes"
		if info.OwnerAccess {
			enc += " (owner password)"
		}
	}
	lines := [][2]string{
		{"File", info.File},
		{"PDF version", info.Version},
		{"Title", info.Title},
		{"Author", info.Author},
		{"Subject", info.Subject},
		{"Keywords", info.Keywords},
		{"Creator", info.Creator},
		{"Producer", info.Producer},
		{"CreationDate", date(info.CreationDate)},
		{"ModDate", date(info.ModDate)},
		{"Pages", fmt.Sprint(info.Pages)},
		{"Encrypted", enc},
	}
	for _, l := range lines {
		if err := line(l[0], l[1]); err != nil {
			return err
		}
	}
	keys := maps.Keys(info.Custom)
	slices.Sort(keys)
	for _, k := range keys {
		if err := line(k, info.Custom[k]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
