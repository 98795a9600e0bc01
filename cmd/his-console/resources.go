package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/his/his/internal/console/workspace"
	"github.com/his/his/pkg/access"
	"github.com/his/his/pkg/hisapi"
)

// collection is a workspace view with its payload type erased.
type collection interface {
	Load(ctx context.Context) error
	Status() workspace.Status
	Message() string
	Rows() []any
	Show(ctx context.Context, id string) (any, error)
	CreateFrom(ctx context.Context, data []byte) (any, error)
	UpdateFrom(ctx context.Context, id string, data []byte) (any, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type typedView[T hisapi.Identified] struct {
	*workspace.View[T]
}

func (v typedView[T]) Rows() []any {
	items := v.Items()
	out := make([]any, len(items))
	for i := range items {
		out[i] = items[i]
	}
	return out
}

func (v typedView[T]) Show(ctx context.Context, id string) (any, error) {
	return v.Get(ctx, id)
}

func (v typedView[T]) CreateFrom(ctx context.Context, data []byte) (any, error) {
	var payload T
	if err := decodeStrict(data, &payload); err != nil {
		return nil, err
	}
	return v.Create(ctx, payload)
}

func (v typedView[T]) UpdateFrom(ctx context.Context, id string, data []byte) (any, error) {
	var patch T
	if err := decodeStrict(data, &patch); err != nil {
		return nil, err
	}
	return v.Update(ctx, id, patch)
}

func viewOf[T hisapi.Identified](ws *workspace.Workspace, resource string) collection {
	return typedView[T]{workspace.ViewFor[T](ws, resource)}
}

// resourceView returns the typed view for a document resource.
func resourceView(ws *workspace.Workspace, resource string) (collection, error) {
	switch resource {
	case access.ResourcePatients:
		return viewOf[hisapi.Patient](ws, resource), nil
	case access.ResourceDoctors:
		return viewOf[hisapi.Doctor](ws, resource), nil
	case access.ResourceAppointments:
		return viewOf[hisapi.Appointment](ws, resource), nil
	case access.ResourceInvoices:
		return viewOf[hisapi.Invoice](ws, resource), nil
	case access.ResourceLabSamples:
		return viewOf[hisapi.LabSample](ws, resource), nil
	case access.ResourceRadiologyOrders:
		return viewOf[hisapi.RadiologyOrder](ws, resource), nil
	case access.ResourcePharmacyInventory:
		return viewOf[hisapi.PharmacyItem](ws, resource), nil
	case access.ResourceInsurancePanels:
		return viewOf[hisapi.InsurancePanel](ws, resource), nil
	case access.ResourceInsuranceClaims:
		return viewOf[hisapi.InsuranceClaim](ws, resource), nil
	case access.ResourceCMSPages:
		return viewOf[hisapi.CMSPage](ws, resource), nil
	case access.ResourceBlogs:
		return viewOf[hisapi.Blog](ws, resource), nil
	case access.ResourceSliders:
		return viewOf[hisapi.Slider](ws, resource), nil
	case access.ResourceSEOEntries:
		return viewOf[hisapi.SEOEntry](ws, resource), nil
	case access.ResourceAnnouncements:
		return viewOf[hisapi.Announcement](ws, resource), nil
	case access.ResourceLeaveRequests:
		return viewOf[hisapi.LeaveRequest](ws, resource), nil
	case access.ResourceCustomReports:
		return viewOf[hisapi.CustomReport](ws, resource), nil
	case access.ResourceSettings:
		return viewOf[hisapi.Setting](ws, resource), nil
	case access.ResourceUsers:
		return viewOf[hisapi.User](ws, resource), nil
	}
	return nil, fmt.Errorf("unknown resource %q", resource)
}

// guardResource opens the resource's module and checks the write action,
// if any, before anything is sent.
func (a *app) guardResource(resource string, op access.Operation) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	if _, err := a.nav.OpenResource(resource); err != nil {
		return err
	}
	if op != "" && !access.CanWrite(a.store.Role(), resource, op) {
		return fmt.Errorf("role %s may not %s %s", a.store.Role(), op, resource)
	}
	return nil
}

func listCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <resource>",
		Short: "List the records of a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			resource := args[0]
			if err := a.guardResource(resource, ""); err != nil {
				return err
			}
			view, err := resourceView(a.ws, resource)
			if err != nil {
				return err
			}
			if err := view.Load(cmd.Context()); err != nil {
				return err
			}
			if view.Status() == workspace.Empty {
				fmt.Fprintln(a.out, view.Message())
				return nil
			}
			enc := json.NewEncoder(a.out)
			for _, row := range view.Rows() {
				if err := enc.Encode(row); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func showCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <resource> <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			resource, id := args[0], args[1]
			if err := a.guardResource(resource, ""); err != nil {
				return err
			}
			view, err := resourceView(a.ws, resource)
			if err != nil {
				return err
			}
			item, err := view.Show(cmd.Context(), id)
			if err != nil {
				return err
			}
			return json.NewEncoder(a.out).Encode(item)
		},
	}
}

func createCmd(appFn func() *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create <resource>",
		Short: "Create a record from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			resource := args[0]
			if err := a.guardResource(resource, access.OpCreate); err != nil {
				return err
			}
			data, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			var created any
			if resource == access.ResourceUsers {
				var req hisapi.InviteRequest
				if err := decodeStrict(data, &req); err != nil {
					return err
				}
				if req.Role == access.RoleSuperAdmin && !access.CanPerform(a.store.Role(), access.ActionGrantSuperAdmin) {
					return fmt.Errorf("role %s may not grant %s", a.store.Role(), access.RoleSuperAdmin)
				}
				raw, err := a.client.Invite(cmd.Context(), req)
				if err != nil {
					return err
				}
				created = json.RawMessage(raw)
			} else {
				view, err := resourceView(a.ws, resource)
				if err != nil {
					return err
				}
				if created, err = view.CreateFrom(cmd.Context(), data); err != nil {
					return err
				}
			}
			return json.NewEncoder(a.out).Encode(created)
		},
	}
	cmd.Flags().StringVar(&file, "file", "-", "JSON payload file, - for stdin")
	return cmd
}

func updateCmd(appFn func() *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "update <resource> <id>",
		Short: "Apply a partial update from a JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			resource, id := args[0], args[1]
			if err := a.guardResource(resource, access.OpUpdate); err != nil {
				return err
			}
			data, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			var updated any
			if resource == access.ResourceUsers {
				var req hisapi.RoleChangeRequest
				if err := decodeStrict(data, &req); err != nil {
					return err
				}
				raw, err := a.client.ChangeRole(cmd.Context(), id, req)
				if err != nil {
					return err
				}
				updated = json.RawMessage(raw)
			} else {
				view, err := resourceView(a.ws, resource)
				if err != nil {
					return err
				}
				if updated, err = view.UpdateFrom(cmd.Context(), id, data); err != nil {
					return err
				}
			}
			return json.NewEncoder(a.out).Encode(updated)
		},
	}
	cmd.Flags().StringVar(&file, "file", "-", "JSON patch file, - for stdin")
	return cmd
}

func deleteCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <resource> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			resource, id := args[0], args[1]
			if err := a.guardResource(resource, access.OpDelete); err != nil {
				return err
			}
			view, err := resourceView(a.ws, resource)
			if err != nil {
				return err
			}
			deleted, err := view.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Fprintf(a.out, "%s %s was already gone.\n", resource, id)
				return nil
			}
			fmt.Fprintf(a.out, "Deleted %s %s.\n", resource, id)
			return nil
		},
	}
}

func readInput(stdin io.Reader, file string) ([]byte, error) {
	if file == "" || file == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}

// decodeStrict rejects keys the payload type does not define so typos are
// not silently dropped.
func decodeStrict(data []byte, v any) error {
	keys, err := hisapi.PresentKeys(data)
	if err != nil {
		return err
	}
	if err := hisapi.CheckKeys(v, keys); err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
