package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// findDecl returns the first declaration matching kind and name, or nil.
func findDecl(syms *FileSymbols, kind graph.NodeKind, name string) *Declaration {
	for i := range syms.Declarations {
		d := &syms.Declarations[i]
		if d.Kind == kind && d.Name == name {
			return d
		}
	}
	return nil
}

// findRefs returns all references of the given kind.
func findRefs(syms *FileSymbols, kind RefKind) []Reference {
	var out []Reference
	for _, r := range syms.References {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func TestRegistry_For(t *testing.T) {
	r := DefaultRegistry()

	for path, want := range map[string]string{
		"webapp/CustomerManager.cs": "*adapter.CSharpAdapter",
		"webapp/Customers.aspx.cs":  "*adapter.CSharpAdapter",
		"webapp/Customers.ASPX":     "*adapter.ASPXAdapter",
		"db/customers.sql":          "*adapter.SQLAdapter",
	} {
		a, err := r.For(path)
		require.NoError(t, err, "For(%s)", path)
		assert.IsType(t, wantAdapter(want), a, "For(%s)", path)
	}

	_, err := r.For("readme.md")
	require.Error(t, err)
}

func wantAdapter(name string) Adapter {
	switch name {
	case "*adapter.CSharpAdapter":
		return &CSharpAdapter{}
	case "*adapter.ASPXAdapter":
		return &ASPXAdapter{}
	default:
		return &SQLAdapter{}
	}
}

func TestCSharpAdapter_Extract(t *testing.T) {
	source := []byte(`using System;

namespace WebShop.Business
{
    public class CustomerManager : BaseManager
    {
        public string ConnectionString { get; set; }

        public Customer GetCustomer(int id)
        {
            var cmd = new SqlCommand("usp_GetCustomer", Connection);
            return reader.MapCustomer(cmd);
        }

        public void DeleteCustomer(int id)
        {
            var s = id.ToString();
            repository.Remove(id);
        }
    }
}
`)
	syms, err := NewCSharpAdapter().Extract("CustomerManager.cs", source)
	require.NoError(t, err)

	ns := findDecl(syms, graph.NodeKindNamespace, "WebShop.Business")
	require.NotNil(t, ns)
	assert.Equal(t, "WebShop.Business", ns.QualifiedPath)

	class := findDecl(syms, graph.NodeKindClass, "CustomerManager")
	require.NotNil(t, class)
	assert.Equal(t, "WebShop.Business.CustomerManager", class.QualifiedPath)
	assert.Equal(t, "WebShop.Business", class.Parent)
	assert.Equal(t, "public", class.Attributes["access"])

	prop := findDecl(syms, graph.NodeKindProperty, "ConnectionString")
	require.NotNil(t, prop)
	assert.Equal(t, "WebShop.Business.CustomerManager", prop.Parent)

	method := findDecl(syms, graph.NodeKindMethod, "GetCustomer")
	require.NotNil(t, method)
	assert.Equal(t, "WebShop.Business.CustomerManager.GetCustomer", method.QualifiedPath)

	require.NotNil(t, findDecl(syms, graph.NodeKindMethod, "DeleteCustomer"))

	inherits := findRefs(syms, RefInherit)
	require.Len(t, inherits, 1)
	assert.Equal(t, "BaseManager", inherits[0].TargetName)
	assert.Equal(t, class.QualifiedPath, inherits[0].SourcePath)

	calls := findRefs(syms, RefCall)
	var targets []string
	for _, c := range calls {
		targets = append(targets, c.TargetName)
	}
	assert.Contains(t, targets, "usp_GetCustomer",
		"quoted identifiers on ADO.NET lines are callable references")
	assert.Contains(t, targets, "MapCustomer")
	assert.Contains(t, targets, "Remove")
	assert.NotContains(t, targets, "ToString", "noise receiver methods are dropped")

	for _, c := range calls {
		if c.TargetName == "usp_GetCustomer" {
			assert.Equal(t, "WebShop.Business.CustomerManager.GetCustomer", c.SourcePath)
		}
	}
}

func TestCSharpAdapter_PartialClass(t *testing.T) {
	source := []byte(`namespace WebShop.Web
{
    public partial class CustomersPage : System.Web.UI.Page
    {
        protected void Page_Load(object sender, EventArgs e)
        {
            manager.GetCustomer(1);
        }
    }
}
`)
	syms, err := NewCSharpAdapter().Extract("Customers.aspx.cs", source)
	require.NoError(t, err)

	class := findDecl(syms, graph.NodeKindClass, "CustomersPage")
	require.NotNil(t, class)
	assert.Equal(t, "WebShop.Web.CustomersPage", class.QualifiedPath)

	inherits := findRefs(syms, RefInherit)
	require.Len(t, inherits, 1)
	assert.Equal(t, "System.Web.UI.Page", inherits[0].TargetName)

	calls := findRefs(syms, RefCall)
	require.Len(t, calls, 1)
	assert.Equal(t, "GetCustomer", calls[0].TargetName)
	assert.Equal(t, "WebShop.Web.CustomersPage.Page_Load", calls[0].SourcePath)
}

func TestASPXAdapter_Extract(t *testing.T) {
	source := []byte(`<%@ Page Language="C#" CodeBehind="Customers.aspx.cs" Inherits="WebShop.Web.CustomersPage" %>
<html>
<body>
    <asp:GridView ID="CustomerGrid" runat="server">
        <asp:Label ID="NameLabel" runat="server" Text='<%# Eval("Name") %>' />
    </asp:GridView>
    <asp:Button ID="RefreshButton" runat="server" Text='<%# Bind("Caption") %>' />
</body>
</html>
`)
	syms, err := NewASPXAdapter().Extract("web/Customers.aspx", source)
	require.NoError(t, err)

	page := findDecl(syms, graph.NodeKindPage, "Customers")
	require.NotNil(t, page, "the page node is named after the file stem")
	assert.Equal(t, "Customers", page.QualifiedPath)

	grid := findDecl(syms, graph.NodeKindPageControl, "CustomerGrid")
	require.NotNil(t, grid)
	assert.Equal(t, "Customers.CustomerGrid", grid.QualifiedPath)
	assert.Equal(t, "Customers", grid.Parent)
	assert.Equal(t, "GridView", grid.Attributes["controlType"])

	require.NotNil(t, findDecl(syms, graph.NodeKindPageControl, "NameLabel"))
	require.NotNil(t, findDecl(syms, graph.NodeKindPageControl, "RefreshButton"))

	cb := findRefs(syms, RefCodeBehind)
	require.Len(t, cb, 1)
	assert.Equal(t, "WebShop.Web.CustomersPage", cb[0].TargetName)
	assert.Equal(t, "Customers", cb[0].SourcePath)

	binds := findRefs(syms, RefBind)
	require.Len(t, binds, 2)
	assert.Equal(t, "Name", binds[0].TargetName)
	assert.Equal(t, "Caption", binds[1].TargetName)
}

func TestSQLAdapter_Extract(t *testing.T) {
	source := []byte(`-- customer procedures
CREATE PROCEDURE usp_GetCustomer
    @Id INT
AS
BEGIN
    SELECT Id, Name FROM Customers WHERE Id = @Id
END
GO

CREATE OR ALTER PROC [dbo].[usp_SaveCustomer]
AS
BEGIN
    UPDATE Customers SET Name = @Name WHERE Id = @Id
    INSERT INTO Customers (Name) VALUES (@Name)
    SELECT c.Id FROM Customers c JOIN Orders o ON o.CustomerId = c.Id
END
`)
	syms, err := NewSQLAdapter().Extract("customers.sql", source)
	require.NoError(t, err)

	require.NotNil(t, findDecl(syms, graph.NodeKindStoredProcedure, "usp_GetCustomer"))
	require.NotNil(t, findDecl(syms, graph.NodeKindStoredProcedure, "usp_SaveCustomer"))
	assert.Len(t, syms.Declarations, 2)

	type pair struct{ proc, table string }
	got := make(map[pair]int)
	for _, r := range findRefs(syms, RefTable) {
		got[pair{r.SourcePath, r.TargetName}]++
	}
	assert.Equal(t, 1, got[pair{"usp_GetCustomer", "Customers"}])
	assert.Equal(t, 1, got[pair{"usp_SaveCustomer", "Customers"}],
		"repeated table access within one procedure is deduplicated")
	assert.Equal(t, 1, got[pair{"usp_SaveCustomer", "Orders"}])
}

func TestSQLAdapter_IgnoresStatementsOutsideProcedures(t *testing.T) {
	source := []byte(`SELECT * FROM LooseTable
CREATE PROCEDURE usp_Noop AS BEGIN SELECT 1 END
`)
	syms, err := NewSQLAdapter().Extract("loose.sql", source)
	require.NoError(t, err)
	assert.Empty(t, findRefs(syms, RefTable))
	assert.Len(t, syms.Declarations, 1)
}
