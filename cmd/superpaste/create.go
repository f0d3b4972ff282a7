package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"superpaste/pkg/domain"
	"superpaste/svc/async"
	"superpaste/svc/backend"
	"superpaste/svc/backend/mystbin"
	"superpaste/svc/backend/pasteee"
	"superpaste/svc/svc"
)

type createFlags struct {
	backend     string
	mirror      []string
	binary      bool
	name        string
	expires     time.Duration
	password    string
	description string
}

func newCreateCommand(cli *CLI) *cobra.Command {
	var f createFlags
	cmd := &cobra.Command{
		Use:   "create [FILE...]",
		Short: "Upload files, or stdin when no file is given",
		Example: `  superpaste create main.go
  echo hello | superpaste create -b mystb.in --expires 24h
  superpaste create notes.md --mirror hst.sh --mirror skyra.pw`,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := cli.readFiles(args, f)
			if err != nil {
				return err
			}
			if len(f.mirror) > 0 {
				return cli.mirror(cmd.Context(), f, files)
			}
			return cli.create(cmd.Context(), f, files)
		},
	}
	cmd.Flags().StringVarP(&f.backend, "backend", "b", "", "backend to use (default $BACKEND)")
	cmd.Flags().StringSliceVar(&f.mirror, "mirror", nil, "upload to each of these backends concurrently")
	cmd.Flags().BoolVar(&f.binary, "binary", false, "read files as binary")
	cmd.Flags().StringVar(&f.name, "name", "", "filename for stdin content")
	cmd.Flags().DurationVar(&f.expires, "expires", 0, "mystb.in: delete the paste after this long")
	cmd.Flags().StringVar(&f.password, "password", "", "mystb.in: protect the paste with a password")
	cmd.Flags().StringVar(&f.description, "description", "", "paste.ee: paste description")
	return cmd
}

func (cli *CLI) readFiles(args []string, f createFlags) ([]domain.Filer, error) {
	mode := domain.ModeText
	if f.binary {
		mode = domain.ModeBinary
	}
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(cli.in)
		if err != nil {
			return nil, err
		}
		if f.binary {
			return []domain.Filer{domain.NewBinaryFile(data, f.name)}, nil
		}
		return []domain.Filer{domain.NewTextFile(string(data), f.name)}, nil
	}
	files := make([]domain.Filer, 0, len(args))
	for _, path := range args {
		file, err := domain.FromLocalFile(path, mode)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

// open builds the named backend with the per-call options applied.
func (cli *CLI) open(ctx context.Context, name string, f createFlags) (domain.Backend, error) {
	if name == "" {
		name = cli.cfg.Backend
	}
	b, err := backend.New(ctx, name, cli.cfg, cli.secrets)
	if err != nil {
		return nil, err
	}
	switch v := b.(type) {
	case *mystbin.Backend:
		if f.expires > 0 {
			v = v.WithExpiry(time.Now().Add(f.expires))
		}
		if f.password != "" {
			v = v.WithPassword(f.password)
		}
		return v, nil
	case *pasteee.Backend:
		if f.description != "" {
			return v.WithDefaults(pasteee.CreateOptions{Description: f.description}), nil
		}
	}
	return b, nil
}

func (cli *CLI) create(ctx context.Context, f createFlags, files []domain.Filer) error {
	b, err := cli.open(ctx, f.backend, f)
	if err != nil {
		return err
	}
	pool := async.NewPool(1)
	if err := pool.Start(cli.cfg.AsyncWorkers); err != nil {
		return err
	}
	defer pool.Stop()
	p := svc.NewPaste(b, pool)
	defer p.Shutdown()

	results, err := p.CreateAsync(ctx, files...).Wait(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintln(cli.out, r.URL)
	}
	return nil
}

func (cli *CLI) mirror(ctx context.Context, f createFlags, files []domain.Filer) error {
	names := f.mirror
	if f.backend != "" {
		names = append([]string{f.backend}, names...)
	}
	var mu sync.Mutex
	urls := make(map[string][]string, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			b, err := cli.open(gctx, name, f)
			if err != nil {
				return err
			}
			results, err := svc.NewPaste(b, nil).Create(gctx, files...)
			if err != nil {
				return errors.Wrap(err, name)
			}
			mu.Lock()
			for _, r := range results {
				urls[name] = append(urls[name], r.URL)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, name := range names {
		for _, u := range urls[name] {
			fmt.Fprintf(cli.out, "%s\t%s\n", name, u)
		}
	}
	return nil
}
