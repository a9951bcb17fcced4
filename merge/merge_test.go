package merge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ulrikforsgren/netconf/merge/schema"
	"github.com/ulrikforsgren/netconf/xmltree"
)

const ifaceSchema = `{
  "tree": {
    "interfaces": ["container", {
      "interface": ["list", {
        "name": ["leaf", {}],
        "enabled": ["leaf", {}],
        "description": ["leaf", {}],
        "address": ["list", {
          "ip": ["leaf", {}],
          "prefix-length": ["leaf", {}]
        }, [["", "ip"]]]
      }, [["", "name"]]]
    }]
  }
}`

func mustSchema(t *testing.T) *schema.Tree {
	t.Helper()
	tree, err := schema.Load(strings.NewReader(ifaceSchema))
	require.NoError(t, err)
	return tree
}

func parse(t *testing.T, doc string) *xmltree.Element {
	t.Helper()
	el, err := xmltree.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return el
}

func TestMergeAppendsNewListEntry(t *testing.T) {
	base := parse(t, `<interfaces><interface><name>eth0</name><enabled>true</enabled></interface></interfaces>`)
	overlay := parse(t, `<interfaces><interface><name>eth1</name><enabled>false</enabled></interface></interfaces>`)

	require.NoError(t, Tree(base, overlay, mustSchema(t)))

	ifaces := base.FindAll("interface")
	require.Len(t, ifaces, 2)
	require.Equal(t, "eth1", ifaces[1].Find("name").Text)
}

func TestMergeUpdatesMatchingListEntry(t *testing.T) {
	base := parse(t, `<interfaces><interface><name>eth0</name><enabled>true</enabled></interface></interfaces>`)
	overlay := parse(t, `<interfaces><interface><name>eth0</name><description>uplink</description></interface></interfaces>`)

	require.NoError(t, Tree(base, overlay, mustSchema(t)))

	ifaces := base.FindAll("interface")
	require.Len(t, ifaces, 1)
	require.Equal(t, "true", ifaces[0].Find("enabled").Text)
	require.Equal(t, "uplink", ifaces[0].Find("description").Text)
}

func TestCreateFailsIfKeyAlreadyExists(t *testing.T) {
	base := parse(t, `<interfaces><interface><name>eth0</name></interface></interfaces>`)
	overlay := parse(t, `<interfaces><interface operation="create"><name>eth0</name></interface></interfaces>`)

	err := Tree(base, overlay, mustSchema(t))
	require.Error(t, err)
}

func TestCreateSucceedsForNewKey(t *testing.T) {
	base := parse(t, `<interfaces><interface><name>eth0</name></interface></interfaces>`)
	overlay := parse(t, `<interfaces><interface operation="create"><name>eth1</name></interface></interfaces>`)

	require.NoError(t, Tree(base, overlay, mustSchema(t)))
	require.Len(t, base.FindAll("interface"), 2)
}

func TestReplaceSwapsListEntry(t *testing.T) {
	base := parse(t, `<interfaces><interface><name>eth0</name><enabled>true</enabled><description>old</description></interface></interfaces>`)
	overlay := parse(t, `<interfaces><interface operation="replace"><name>eth0</name><enabled>false</enabled></interface></interfaces>`)

	require.NoError(t, Tree(base, overlay, mustSchema(t)))

	ifaces := base.FindAll("interface")
	require.Len(t, ifaces, 1)
	require.Equal(t, "false", ifaces[0].Find("enabled").Text)
	require.Nil(t, ifaces[0].Find("description"))
}

func TestReplaceRejectsTextOnlyElement(t *testing.T) {
	base := parse(t, `<interfaces><interface><name>eth0</name></interface></interfaces>`)
	// name itself has no subelements: replacing it directly hits the error.
	nameOverlay := parse(t, `<interface><name operation="replace">eth0</name></interface>`)

	sub := mustSchema(t)
	err := Tree(base.Find("interface"), nameOverlay, &schema.Tree{Root: "interface", Node: sub.Node.Children["interface"]})
	require.Error(t, err)
}

func TestDeleteByKeyRemovesListEntry(t *testing.T) {
	base := parse(t, `<interfaces><interface><name>eth0</name></interface><interface><name>eth1</name></interface></interfaces>`)
	overlay := parse(t, `<interfaces><interface operation="delete"><name>eth0</name></interface></interfaces>`)

	require.NoError(t, Tree(base, overlay, mustSchema(t)))

	ifaces := base.FindAll("interface")
	require.Len(t, ifaces, 1)
	require.Equal(t, "eth1", ifaces[0].Find("name").Text)
}

func TestDeleteMissingKeyIsError(t *testing.T) {
	base := parse(t, `<interfaces><interface><name>eth0</name></interface></interfaces>`)
	overlay := parse(t, `<interfaces><interface operation="delete"><name>eth9</name></interface></interfaces>`)

	err := Tree(base, overlay, mustSchema(t))
	require.Error(t, err)
}

func TestRemoveMissingKeyIsNotError(t *testing.T) {
	base := parse(t, `<interfaces><interface><name>eth0</name></interface></interfaces>`)
	overlay := parse(t, `<interfaces><interface operation="remove"><name>eth9</name></interface></interfaces>`)

	require.NoError(t, Tree(base, overlay, mustSchema(t)))
	require.Len(t, base.FindAll("interface"), 1)
}

func TestLeafListDeleteMatchesByTextWhenNonEmpty(t *testing.T) {
	base := parse(t, `<interface><description>a</description><description>b</description></interface>`)
	overlay := parse(t, `<interface><description operation="delete">a</description></interface>`)

	subSchema := &schema.Tree{Root: "interface", Node: &schema.Node{
		Type: "list",
		Children: map[string]*schema.Node{
			"description": {Type: "leaf-list"},
		},
	}}

	require.NoError(t, Tree(base, overlay, subSchema))
	descs := base.FindAll("description")
	require.Len(t, descs, 1)
	require.Equal(t, "b", descs[0].Text)
}

func TestLeafListDeleteWithEmptyTextRemovesAll(t *testing.T) {
	base := parse(t, `<interface><description>a</description><description>b</description></interface>`)
	overlay := parse(t, `<interface><description operation="delete"></description></interface>`)

	subSchema := &schema.Tree{Root: "interface", Node: &schema.Node{
		Type: "list",
		Children: map[string]*schema.Node{
			"description": {Type: "leaf-list"},
		},
	}}

	require.NoError(t, Tree(base, overlay, subSchema))
	require.Len(t, base.FindAll("description"), 0)
}

func TestUnknownTagIsSchemaError(t *testing.T) {
	base := parse(t, `<interfaces></interfaces>`)
	overlay := parse(t, `<interfaces><bogus/></interfaces>`)

	err := Tree(base, overlay, mustSchema(t))
	require.Error(t, err)
}

func TestCleanupStripsOperationAndKeyAttributes(t *testing.T) {
	base := parse(t, `<interfaces><interface><name>eth0</name></interface></interfaces>`)
	overlay := parse(t, `<interfaces><interface operation="merge" key="name"><name>eth0</name><enabled>true</enabled></interface></interfaces>`)

	require.NoError(t, Tree(base, overlay, mustSchema(t)))

	iface := base.Find("interface")
	require.NotContains(t, iface.Attr, "operation")
	require.NotContains(t, iface.Attr, "key")
}

func TestRootTagMismatchIsError(t *testing.T) {
	base := parse(t, `<interfaces></interfaces>`)
	overlay := parse(t, `<other></other>`)

	err := Tree(base, overlay, mustSchema(t))
	require.Error(t, err)
}

func TestMergeIsIdempotent(t *testing.T) {
	overlayDoc := `<interfaces><interface><name>eth0</name><description>uplink</description></interface></interfaces>`
	base := parse(t, `<interfaces><interface><name>eth0</name><enabled>true</enabled></interface></interfaces>`)

	require.NoError(t, Tree(base, parse(t, overlayDoc), mustSchema(t)))
	once := base.String()

	require.NoError(t, Tree(base, parse(t, overlayDoc), mustSchema(t)))
	require.Equal(t, once, base.String(), "applying the same merge twice must equal applying it once")
}

func TestUnknownTagLeavesPriorSiblingsApplied(t *testing.T) {
	// The merge applies overlay children in order and stops at the first
	// schema violation; callers wanting atomicity merge into a clone and
	// discard it on error.
	base := parse(t, `<interfaces></interfaces>`)
	overlay := parse(t, `<interfaces><interface><name>eth0</name></interface><bogus/></interfaces>`)

	err := Tree(base, overlay, mustSchema(t))
	require.Error(t, err)
	require.Len(t, base.FindAll("interface"), 1, "children before the offending tag have been applied")
}
