package processor

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
	"github.com/0xBADBAC0N/ghcrawler/internal/queue"
)

// handleCollection is the entry handler for the first page of a paginated
// resource: it reads the Link header to discover how many pages exist,
// fans the remaining pages out onto the soon queue (they must drain before
// the remote collection's view shifts under re-pagination), and then
// processes its own page of elements inline as page 1.
func handleCollection(ctx context.Context, p *Processor, req *engine.Request) error {
	var header string
	if req.Response != nil {
		header = req.Response.LinkHeader
	}
	links := parseLinkHeader(header)

	if last, ok := lastPageNumber(links); ok {
		for n := 2; n <= last; n++ {
			child := engine.NewRequest("collection", replacePage(req.URL, n), req.Policy)
			child.Context = req.Context
			p.enqueue(ctx, req, queue.PrioritySoon, child)
		}
	}

	return handlePage(ctx, p, req, 1)
}

// pageHandler binds a fixed page number into a Handler, used when
// getHandler dispatches on an explicit page=N query parameter.
func pageHandler(n int) Handler {
	return func(ctx context.Context, p *Processor, req *engine.Request) error {
		return handlePage(ctx, p, req, n)
	}
}

// handlePage stamps the page's self link, applies relation bookkeeping when
// this collection was reached through a relation, and enqueues every
// element on the page.
func handlePage(ctx context.Context, p *Processor, req *engine.Request, n int) error {
	elementType, _ := req.GetCollectionType()

	selfURN := req.Context.Qualifier + ":" + elementType + ":page:" + strconv.Itoa(n)
	if req.Context.Qualifier == "" {
		selfURN = "urn:" + elementType + ":page:" + strconv.Itoa(n)
	}
	req.Document.Metadata.Links.SetSingle("self", engine.LinkSelf, selfURN)

	if req.Context.Relation != nil {
		processRelation(req)
	}

	for _, el := range req.Document.Elements {
		obj, ok := el.(map[string]any)
		if !ok {
			log.Warn().Str("url", req.URL).Msg("processor: collection element is not an object, skipping")
			continue
		}
		elURL, _ := obj["url"].(string)
		queueCollectionElement(ctx, p, req, elementType, elURL)
	}

	return nil
}

// queueCollectionElement enqueues one element discovered on a collection
// page. Root-typed elements are independently addressable and enqueue
// without a qualifier; everything else nests under the collection's
// qualifier.
func queueCollectionElement(ctx context.Context, p *Processor, req *engine.Request, elementType, rawURL string) {
	if rawURL == "" {
		return
	}
	if engine.IsRootType(elementType) {
		p.queueRoot(ctx, req, elementType, rawURL)
		return
	}
	p.queueChild(ctx, req, elementType, rawURL, req.Context.Qualifier)
}
