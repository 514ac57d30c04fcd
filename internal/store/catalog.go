package store

import "strings"

// GlobalWildcard grants every permission.
const GlobalWildcard = "*"

const OwnerRoleName = "Owner"

type CatalogEntry struct {
	Name        string
	Description string
}

// BuiltinPermissions is the global permission catalog seeded at startup.
var BuiltinPermissions = []CatalogEntry{
	{Name: GlobalWildcard, Description: "Every permission in every category"},

	{Name: "organizations.*", Description: "All organization settings permissions"},
	{Name: "organizations.read", Description: "View organization settings"},
	{Name: "organizations.update", Description: "Change organization settings"},

	{Name: "members.*", Description: "All membership permissions"},
	{Name: "members.read", Description: "List organization members"},
	{Name: "members.invite", Description: "Add members to the organization"},
	{Name: "members.update", Description: "Change member roles"},
	{Name: "members.remove", Description: "Deactivate members"},

	{Name: "roles.*", Description: "All role permissions"},
	{Name: "roles.read", Description: "List roles and their grants"},
	{Name: "roles.create", Description: "Create custom roles"},
	{Name: "roles.update", Description: "Edit custom role grants"},
	{Name: "roles.delete", Description: "Delete custom roles"},

	{Name: "products.*", Description: "All product permissions"},
	{Name: "products.read", Description: "View products"},
	{Name: "products.create", Description: "Create products"},
	{Name: "products.update", Description: "Edit products"},
	{Name: "products.delete", Description: "Delete products"},

	{Name: "inventory.*", Description: "All inventory permissions"},
	{Name: "inventory.read", Description: "View stock levels"},
	{Name: "inventory.create", Description: "Record stock movements"},
	{Name: "inventory.update", Description: "Adjust stock levels"},
}

var catalogCategories = func() map[string]struct{} {
	out := make(map[string]struct{}, len(BuiltinPermissions))
	for _, e := range BuiltinPermissions {
		out[PermissionCategory(e.Name)] = struct{}{}
	}
	return out
}()

// IsCatalogCategory reports whether some built-in permission belongs to
// category.
func IsCatalogCategory(category string) bool {
	_, ok := catalogCategories[category]
	return ok
}

// RoleTemplate describes a role created with every new organization.
type RoleTemplate struct {
	Name         string
	Description  string
	Position     int
	IsDefault    bool
	IsSystemRole bool
	Grants       []string
}

var DefaultRoles = []RoleTemplate{
	{
		Name:         OwnerRoleName,
		Description:  "Full access to the organization",
		Position:     0,
		IsSystemRole: true,
		Grants:       []string{GlobalWildcard},
	},
	{
		Name:         "Admin",
		Description:  "Manage members, roles and catalog data",
		Position:     1,
		IsSystemRole: true,
		Grants: []string{
			"organizations.read",
			"organizations.update",
			"members.*",
			"roles.*",
			"products.*",
			"inventory.*",
		},
	},
	{
		Name:         "Member",
		Description:  "Read access to catalog data",
		Position:     2,
		IsDefault:    true,
		IsSystemRole: true,
		Grants: []string{
			"organizations.read",
			"products.read",
			"inventory.read",
		},
	},
}

// PermissionCategory returns the text before the first dot, or the whole
// name when it has none.
func PermissionCategory(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

func IsWildcardPermission(name string) bool {
	return name == GlobalWildcard || strings.HasSuffix(name, ".*")
}
