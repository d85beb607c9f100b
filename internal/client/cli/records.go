package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/dmitrijs2005/praylist/internal/client/models"
)

// askIDs returns args, or prompts for a comma separated list when empty.
func (a *App) askIDs(args []string, prompt string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	return GetList(a.reader, prompt, a.out)
}

// List prints every record: people first, then groups, each by name.
func (a *App) List(ctx context.Context) error {
	records, err := a.records.List(ctx)
	if err != nil {
		return err
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Type != records[j].Type {
			return records[i].Type == models.RecordTypePerson
		}
		return strings.ToLower(records[i].Name) < strings.ToLower(records[j].Name)
	})

	for _, r := range records {
		switch r.Type {
		case models.RecordTypeGroup:
			fmt.Fprintf(a.out, "%s  group   %s (%d members)\n", r.ID, r.Name, len(r.Members))
		default:
			line := fmt.Sprintf("%s  person  %s", r.ID, r.Name)
			if len(r.Tags) > 0 {
				line += " [" + strings.Join(r.Tags, ", ") + "]"
			}
			if r.Archived {
				line += " (archived)"
			}
			fmt.Fprintln(a.out, line)
		}
	}
	if len(records) == 0 {
		fmt.Fprintln(a.out, "No records yet")
	}
	return nil
}

// Show prints the full record with the given id.
func (a *App) Show(ctx context.Context, args []string) error {
	ids, err := a.askIDs(args, "Enter record id to show")
	if err != nil || len(ids) == 0 {
		return err
	}

	r, err := a.records.Get(ctx, ids[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s (%s, version %d)\n", r.Name, r.Type, r.Version)
	if r.Description != "" {
		fmt.Fprintf(a.out, "Description: %s\n", r.Description)
	}
	if len(r.Tags) > 0 {
		fmt.Fprintf(a.out, "Tags: %s\n", strings.Join(r.Tags, ", "))
	}
	if r.Notes != "" {
		fmt.Fprintf(a.out, "Notes:\n%s\n", r.Notes)
	}
	for _, m := range r.Members {
		name := m
		if member, err := a.records.Get(ctx, m); err == nil {
			name = member.Name
		}
		fmt.Fprintf(a.out, "  - %s\n", name)
	}
	return nil
}

// AddPerson prompts for the fields of a new person and saves it.
func (a *App) AddPerson(ctx context.Context) error {
	p := models.NewPerson("")

	var err error
	if p.Name, err = getSimpleText(a.reader, "Name", a.out); err != nil {
		return err
	}
	if p.Description, err = getSimpleText(a.reader, "Description", a.out); err != nil {
		return err
	}
	if p.Tags, err = GetList(a.reader, "Tags", a.out); err != nil {
		return err
	}
	if p.Notes, err = GetMultiline(a.reader, "Notes", a.out); err != nil {
		return err
	}

	if err := a.records.Save(ctx, p); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved %s\n", p.ID)
	return nil
}

// AddGroup prompts for a group name and its member ids and saves it.
func (a *App) AddGroup(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Group name", a.out)
	if err != nil {
		return err
	}
	members, err := GetList(a.reader, "Member ids", a.out)
	if err != nil {
		return err
	}

	g := models.NewGroup(name, members...)
	if err := a.records.Save(ctx, g); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved %s\n", g.ID)
	return nil
}

// Delete removes records by id.
func (a *App) Delete(ctx context.Context, args []string) error {
	ids, err := a.askIDs(args, "Enter record ids to delete")
	if err != nil || len(ids) == 0 {
		return err
	}
	if err := a.records.Delete(ctx, ids...); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %d record(s)\n", len(ids))
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	if err := a.records.Sync(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Synchronized")
	return nil
}

// Settings reads name=value lines, saves them and prints the result.
func (a *App) Settings(ctx context.Context) error {
	lines, err := GetSettings(a.reader, a.out)
	if err != nil {
		return err
	}

	if len(lines) > 0 {
		settings, err := models.SettingsFromStrings(lines)
		if err != nil {
			return err
		}
		if err := a.records.SaveSettings(ctx, settings); err != nil {
			return err
		}
	}

	m, err := a.records.Metadata(ctx)
	if err != nil {
		return err
	}
	for _, k := range slices.Sorted(maps.Keys(m.Settings)) {
		fmt.Fprintf(a.out, "%s=%v\n", k, m.Settings[k])
	}
	return nil
}

// Backup asks the server to export the encrypted records.
func (a *App) Backup(ctx context.Context) error {
	key, err := a.records.Backup(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Backup stored as %s\n", key)
	return nil
}
