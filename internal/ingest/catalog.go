package ingest

import (
	"context"

	"graphpipe/internal/events"
)

// Default CSV locations for the catalog dataset
const (
	ArticlesCSV     = "data/articles.csv"
	CustomersCSV    = "data/customers.csv"
	TransactionsCSV = "data/transactions_train.csv"
)

// articleNodeFields maps article CSV columns to the node types their unique
// values become
var articleNodeFields = []struct {
	field    string
	nodeType events.NodeType
}{
	{"colour_group_name", events.NodeTypeColourGroup},
	{"department_name", events.NodeTypeDepartment},
	{"index_group_name", events.NodeTypeIndexGroup},
	{"product_group_name", events.NodeTypeProductGroup},
	{"product_type_name", events.NodeTypeProductType},
	{"prod_name", events.NodeTypeProduct},
	{"article_id", events.NodeTypeArticle},
}

// articleEdgeSpecs are the catalog hierarchy relationships extracted from the
// articles CSV
var articleEdgeSpecs = []EdgeSpec{
	{
		SourceField: "product_type_name", TargetField: "product_group_name",
		EdgeType:       events.EdgeTypeBelongsTo,
		SourceNodeType: events.NodeTypeProductType, TargetNodeType: events.NodeTypeProductGroup,
	},
	{
		SourceField: "prod_name", TargetField: "product_type_name",
		EdgeType:       events.EdgeTypeBelongsTo,
		SourceNodeType: events.NodeTypeProduct, TargetNodeType: events.NodeTypeProductType,
	},
	{
		SourceField: "prod_name", TargetField: "index_group_name",
		EdgeType:       events.EdgeTypeBelongsTo,
		SourceNodeType: events.NodeTypeProduct, TargetNodeType: events.NodeTypeIndexGroup,
	},
	{
		SourceField: "article_id", TargetField: "prod_name",
		EdgeType:       events.EdgeTypeBelongsTo,
		SourceNodeType: events.NodeTypeArticle, TargetNodeType: events.NodeTypeProduct,
	},
	{
		SourceField: "article_id", TargetField: "colour_group_name",
		EdgeType:       events.EdgeTypeBelongsTo,
		SourceNodeType: events.NodeTypeArticle, TargetNodeType: events.NodeTypeColourGroup,
	},
}

// ArticleNodes sends node events for every catalog entity found in the
// articles CSV
func ArticleNodes(ctx context.Context, sender Sender, csvPath string, opts Options) error {
	for _, nf := range articleNodeFields {
		if err := UniqueFieldValues(ctx, sender, csvPath, nf.field, nf.nodeType, opts); err != nil {
			return err
		}
	}
	return nil
}

// CustomerNodes sends a user node event per unique customer
func CustomerNodes(ctx context.Context, sender Sender, csvPath string, opts Options) error {
	return UniqueFieldValues(ctx, sender, csvPath, "customer_id", events.NodeTypeUser, opts)
}

// AllEdges sends edge events for the catalog hierarchy plus customer purchase
// edges from the transactions CSV
func AllEdges(ctx context.Context, sender Sender, articlesCSV, transactionsCSV string, opts Options) error {
	for _, spec := range articleEdgeSpecs {
		if err := Edges(ctx, sender, articlesCSV, spec, opts); err != nil {
			return err
		}
	}

	return Edges(ctx, sender, transactionsCSV, EdgeSpec{
		SourceField: "customer_id", TargetField: "article_id",
		EdgeType:       events.EdgeTypePurchased,
		SourceNodeType: events.NodeTypeUser, TargetNodeType: events.NodeTypeArticle,
		DataFields:     []string{"price"},
	}, opts)
}
