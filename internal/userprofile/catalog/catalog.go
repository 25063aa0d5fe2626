// Package catalog loads the embedded permission catalog.
package catalog

import (
	_ "embed"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"findiff/internal/userprofile/models"
)

// Permission codenames referenced by route guards.
const (
	PermListAuditOrder     = "list_audit_order"
	PermScanAuditOrder     = "scan_audit_order"
	PermApplyAuditOrder    = "apply_audit_order"
	PermSubmitAuditOrder   = "submit_audit_order"
	PermCreateAuditOrder   = "create_audit_order"
	PermModifyAuditOrder   = "modify_audit_order"
	PermDeleteAuditOrder   = "delete_audit_order"
	PermReturnedAuditOrder = "returned_audit_order"

	PermListQAOrder     = "list_qa_order"
	PermApplyQAOrder    = "apply_qa_order"
	PermAssignQAOrder   = "assign_qa_order"
	PermSubmitQAOrder   = "submit_qa_order"
	PermReturnedQAOrder = "returned_qa_order"

	PermListContent   = "list_content_mgmt"
	PermCreateContent = "create_content_article"
	PermDetailContent = "detail_content_article"
	PermModifyContent = "modify_content_article"
	PermDeleteContent = "delete_content_article"

	PermCheckUserList   = "check_user_list"
	PermAssignRoleAct   = "assign_role_action"
	PermCheckUserGroup  = "check_user_group"
	PermAddUserGroup    = "add_user_group"
	PermEditUserGroup   = "edit_user_group"
	PermDeleteUserGroup = "delete_user_group"
	PermAssignRole      = "assign_role"

	PermListUserKPI = "list_user_kpi"
)

//go:embed perms.yaml
var raw []byte

type document struct {
	Modules []struct {
		Name  string              `yaml:"name"`
		Perms []models.Permission `yaml:"perms"`
	} `yaml:"modules"`
}

// Catalog is the immutable set of known permissions.
type Catalog struct {
	perms   []models.Permission
	modules []string
	index   map[string]models.Permission
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(raw)
}

// MustLoad is Load for process start-up.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse builds a catalog from YAML. Codenames must be unique.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse permission catalog: %w", err)
	}
	c := &Catalog{index: make(map[string]models.Permission)}
	for _, m := range doc.Modules {
		c.modules = append(c.modules, m.Name)
		for _, p := range m.Perms {
			if p.Codename == "" {
				return nil, fmt.Errorf("module %s: permission without codename", m.Name)
			}
			if _, dup := c.index[p.Codename]; dup {
				return nil, fmt.Errorf("duplicate permission codename %q", p.Codename)
			}
			p.Module = m.Name
			c.perms = append(c.perms, p)
			c.index[p.Codename] = p
		}
	}
	return c, nil
}

// All returns every permission in catalog order.
func (c *Catalog) All() []models.Permission {
	return slices.Clone(c.perms)
}

// Codenames returns every codename in catalog order.
func (c *Catalog) Codenames() []string {
	out := make([]string, 0, len(c.perms))
	for _, p := range c.perms {
		out = append(out, p.Codename)
	}
	return out
}

// Modules returns the module names in catalog order.
func (c *Catalog) Modules() []string {
	return slices.Clone(c.modules)
}

// ByModule groups permissions by module name.
func (c *Catalog) ByModule() map[string][]models.Permission {
	out := make(map[string][]models.Permission, len(c.modules))
	for _, p := range c.perms {
		out[p.Module] = append(out[p.Module], p)
	}
	return out
}

func (c *Catalog) Has(codename string) bool {
	_, ok := c.index[codename]
	return ok
}

// Unknown returns the codenames not present in the catalog.
func (c *Catalog) Unknown(codenames []string) []string {
	var out []string
	for _, code := range codenames {
		if !c.Has(code) {
			out = append(out, code)
		}
	}
	return out
}
