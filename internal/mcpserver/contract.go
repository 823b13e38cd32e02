package mcpserver

// GraphFormatContract describes the diagram JSON that layout_graph accepts
// and that every tool returns.
const GraphFormatContract = `# Minto Graph Format Contract

A diagram is a synthesis tree: one governing thought at the top, key-line
ideas beneath it, supporting ideas beneath those.

## Structure

` + "```" + `json
{
  "nodes": [
    {"id": "synthesis", "data": {"label": "The governing thought"}},
    {"id": "key-1", "data": {"label": "A key-line idea"}}
  ],
  "edges": [
    {"id": "e-synthesis-key-1", "source": "synthesis", "target": "key-1"}
  ]
}
` + "```" + `

## Rules

1. **Both arrays are required.** Use ` + "`" + `[]` + "`" + ` for an empty list.
2. **Node ids are unique** across the diagram, and so are edge ids. Node and
   edge ids live in separate namespaces.
3. **Every edge endpoint names an existing node.** A dangling edge is rejected
   with the offending edge id; nothing is repaired.
4. **Edges point from parent to child.** Cycles, including self-loops, are
   rejected.
5. **Unknown fields are rejected.** Only ` + "`" + `id` + "`" + `, ` + "`" + `data.label` + "`" + `,
   ` + "`" + `position` + "`" + ` and ` + "`" + `type` + "`" + ` are accepted on nodes.
6. **Positions and types are computed.** Any ` + "`" + `position` + "`" + ` or
   ` + "`" + `type` + "`" + ` you send is replaced by the layout. A node with no
   incoming edge gets ` + "`" + `type: "synthesis"` + "`" + `, every other node
   ` + "`" + `type: "idea"` + "`" + `. Positions are top-left corners.
7. **Direction** is ` + "`" + `TB` + "`" + ` (top to bottom, the default) or
   ` + "`" + `LR` + "`" + ` (left to right).

## Expansion

` + "`" + `expand_node` + "`" + ` asks the model for the children of one node and
merges them into the stored diagram. New ids must not collide with existing
ones; a collision fails the expansion and leaves the diagram unchanged. A node
that is still being expanded cannot be expanded again until it finishes.

## Example input

The reserved title ` + "`" + `EXAMPLE` + "`" + ` (any case, surrounding spaces
ignored) loads a built-in example without calling the model.
`
