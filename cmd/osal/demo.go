package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wippyai/osal/errors"
	"github.com/wippyai/osal/objid"
	"github.com/wippyai/osal/registry"
)

const demoCapacity = 5

func newDemoCommand(a *app) *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "fill a table, overflow it, free a slot and reuse it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := objid.ParseType(typeName)
			if !ok {
				return fmt.Errorf("unknown object type %q", typeName)
			}
			return runDemo(cmd.Context(), a, cmd.OutOrStdout(), t)
		},
	}
	cmd.Flags().StringVar(&typeName, "type", objid.TypeQueue.String(), "object type to allocate")
	return cmd
}

func runDemo(ctx context.Context, a *app, out io.Writer, t objid.Type) error {
	cfg := a.cfg.Registry
	cfg.SetCapacity(t, demoCapacity)

	reg, err := a.newRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer reg.Teardown()

	create := func(name string) (objid.ID, error) {
		tok, err := reg.AllocateNew(ctx, t, name)
		if err != nil {
			return objid.Undefined, err
		}
		return reg.FinalizeNew(tok, nil)
	}

	var ids []objid.ID
	for i := 0; i < demoCapacity; i++ {
		name := fmt.Sprintf("%s-%d", t, i)
		id, err := create(name)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		ids = append(ids, id)
		fmt.Fprintf(out, "created  %-10s %s\n", name, id)
	}

	_, err = create(fmt.Sprintf("%s-%d", t, demoCapacity))
	fmt.Fprintf(out, "overflow status=%d (%v)\n", errors.Status(err), err)
	if errors.KindOf(err) != errors.KindNoFreeIDs {
		return fmt.Errorf("expected a full table, got %v", err)
	}

	victim := ids[demoCapacity/2]
	tok, err := reg.GetByID(ctx, registry.LockExclusive, t, victim)
	if err != nil {
		return fmt.Errorf("delete %s: %w", victim, err)
	}
	if err := reg.FinalizeDelete(tok, nil); err != nil {
		return fmt.Errorf("delete %s: %w", victim, err)
	}
	fmt.Fprintf(out, "deleted  %s\n", victim)

	fresh, err := create("fresh")
	if err != nil {
		return fmt.Errorf("create fresh: %w", err)
	}
	fmt.Fprintf(out, "created  %-10s %s\n", "fresh", fresh)

	for _, id := range ids {
		if id == fresh {
			return fmt.Errorf("id %s was reissued", fresh)
		}
	}

	s := reg.Stats(t)
	fmt.Fprintf(out, "%s: %d/%d active\n", t, s.Active, s.Capacity)
	return nil
}
