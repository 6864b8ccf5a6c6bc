package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heavy-go/hv/internal/component"
	"github.com/heavy-go/hv/internal/persist"
	"github.com/heavy-go/hv/internal/prefab"
	"github.com/heavy-go/hv/internal/spaces"
)

func packCmd(a *app) *cobra.Command {
	var name string
	var toDB bool
	cmd := &cobra.Command{
		Use:   "pack <prefab.yaml>",
		Short: "spawn a prefab into a fresh space and save it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ser, err := a.runtime()
			if err != nil {
				return err
			}
			p, err := prefab.LoadFile(args[0])
			if err != nil {
				return err
			}
			space := a.spaces.CreateSpace()
			loader := prefab.NewLoader(a.codecs, a.engine, a.tables, a.log)
			if _, err := loader.Spawn(space, p); err != nil {
				return err
			}
			snap, err := ser.Snapshot(space)
			if err != nil {
				return fmt.Errorf("serialize: %w", err)
			}
			if name == "" {
				name = a.cfg.Save.Name
			}
			save := persist.NewSave(name, a.codecs.Fingerprint(), space.Len(), snap)

			if toDB || a.cfg.Save.UseDatabase {
				repo, err := a.database(cmd.Context())
				if err != nil {
					return err
				}
				if err := repo.Insert(cmd.Context(), save); err != nil {
					return err
				}
				if keep := a.cfg.Save.KeepPerName; keep > 0 {
					n, err := repo.Prune(cmd.Context(), name, keep)
					if err != nil {
						return err
					}
					a.log.Info("pruned saves", zap.String("name", name), zap.Int64("deleted", n))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", save.ID)
				return nil
			}

			path, err := persist.WriteFile(a.cfg.Save.Dir, save)
			if err != nil {
				return err
			}
			a.log.Info("saved space",
				zap.String("file", path),
				zap.Int("objects", save.ObjectCount))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "save name (default from config)")
	cmd.Flags().BoolVar(&toDB, "db", false, "store the save in the database")
	return cmd
}

func inspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.hvsave>",
		Short: "verify a save file and print its contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			save, err := persist.ReadFile(args[0])
			if err != nil {
				return err
			}
			return a.restore(cmd.OutOrStdout(), save)
		},
	}
}

func loadCmd(a *app) *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "load a save from the database and print its contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.database(cmd.Context())
			if err != nil {
				return err
			}
			var save *persist.Save
			if id != "" {
				uid, err := uuid.Parse(id)
				if err != nil {
					return fmt.Errorf("save id: %w", err)
				}
				save, err = repo.Load(cmd.Context(), uid)
				if err != nil {
					return err
				}
			} else {
				if name == "" {
					name = a.cfg.Save.Name
				}
				save, err = repo.Latest(cmd.Context(), name)
				if err != nil {
					return err
				}
			}
			if save == nil {
				return fmt.Errorf("no such save")
			}
			return a.restore(cmd.OutOrStdout(), save)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "save id")
	cmd.Flags().StringVar(&name, "name", "", "load the newest save with this name")
	return cmd
}

func listCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list database saves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.database(cmd.Context())
			if err != nil {
				return err
			}
			if name == "" {
				name = a.cfg.Save.Name
			}
			infos, err := repo.List(cmd.Context(), name)
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-12s  %016x  %6d objects  %8d bytes\n",
					info.ID, info.Name, info.Fingerprint, info.ObjectCount, info.Size)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "save name (default from config)")
	return cmd
}

// restore verifies save, loads it into a fresh space and prints a summary.
func (a *app) restore(out io.Writer, save *persist.Save) error {
	ser, err := a.runtime()
	if err != nil {
		return err
	}
	var fingerprint uint64
	if a.cfg.Save.VerifyDigest {
		fingerprint = a.codecs.Fingerprint()
		if err := save.Verify(fingerprint); err != nil {
			return err
		}
	}
	space := a.spaces.CreateSpace()
	if err := ser.Restore(space, save.Snapshot); err != nil {
		return fmt.Errorf("restore %s: %w", save.ID, err)
	}
	pruned := a.tables.Prune(space)

	fmt.Fprintf(out, "save %s %q written %s\n", save.ID, save.Name, save.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  objects %d, lua tables %d, stale tables %d\n", space.Len(), a.tables.Len(), pruned)
	for _, arch := range space.Archetypes() {
		types := make([]string, len(arch.Types()))
		for i, t := range arch.Types() {
			types[i] = t.String()
		}
		fmt.Fprintf(out, "  %5d × {%s}\n", arch.Len(), strings.Join(types, ", "))
	}
	return summarizeParents(out, space)
}

func summarizeParents(out io.Writer, space *spaces.Space) error {
	children := make(map[spaces.Object]int)
	spaces.Each(space, func(_ spaces.Object, p *component.Parent) {
		children[p.Object]++
	})
	for parent, n := range children {
		if !space.Contains(parent) {
			return fmt.Errorf("object %v has %d children but does not exist", parent, n)
		}
		fmt.Fprintf(out, "  %v has %d children\n", parent, n)
	}
	return nil
}
