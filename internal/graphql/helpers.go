package graphql

import "github.com/antonholmquist/jason"

// Nodes returns the edge nodes of a connection, e.g. data.carriers.edges[].node.
func Nodes(data *jason.Object, connection string) []*jason.Object {
	edges, err := data.GetObjectArray(connection, "edges")
	if err != nil {
		return nil
	}
	nodes := make([]*jason.Object, 0, len(edges))
	for _, edge := range edges {
		if node, err := edge.GetObject("node"); err == nil {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// FirstNodeID returns the id of the first edge node of connection.
func FirstNodeID(data *jason.Object, connection string) (string, bool) {
	nodes := Nodes(data, connection)
	if len(nodes) == 0 {
		return "", false
	}
	id, err := nodes[0].GetString("id")
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

// PageInfo is the cursor state of a connection.
type PageInfo struct {
	HasNextPage bool
	EndCursor   string
}

// GetPageInfo reads connection.pageInfo. Missing fields read as the last page.
func GetPageInfo(data *jason.Object, connection string) PageInfo {
	var pi PageInfo
	info, err := data.GetObject(connection, "pageInfo")
	if err != nil {
		return pi
	}
	pi.HasNextPage, _ = info.GetBoolean("hasNextPage")
	pi.EndCursor, _ = info.GetString("endCursor")
	return pi
}

// CreatedID reads data.<mutation>.id.
func CreatedID(data *jason.Object, mutation string) (string, bool) {
	id, err := data.GetString(mutation, "id")
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}
