package processor

import (
	"context"
	"fmt"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
	"github.com/0xBADBAC0N/ghcrawler/internal/queue"
)

// setSelf stamps the self and siblings links every root handler opens with,
// and returns the resource's own URN for downstream link helpers to nest
// under.
func setSelf(req *engine.Request, resourceType string, id string) string {
	urn := engine.URN(resourceType, fmt.Sprint(id))
	req.Document.Metadata.Links.SetSingle("self", engine.LinkSelf, urn)
	if req.Context.Qualifier != "" {
		req.Document.Metadata.Links.SetSingle("siblings", engine.LinkSiblings, req.Context.Qualifier)
	}
	return urn
}

// addRoot links name to a single resource of resourceType and enqueues that
// resource as a freshly discovered root Request, per the spec's _addRoot.
func addRoot(ctx context.Context, p *Processor, req *engine.Request, name, resourceType, rawURL, id string) {
	if rawURL == "" || id == "" {
		return
	}
	urn := engine.URN(resourceType, id)
	req.Document.Metadata.Links.SetSingle(name, engine.LinkResource, urn)
	p.queueRoot(ctx, req, resourceType, rawURL)
}

// addCollection links name to the collection this resource owns and
// enqueues it for pagination. Root-typed elements (e.g. a repo's issues)
// are enqueued without a qualifier since they are independently
// addressable; non-root elements inherit the owning resource's qualifier
// so their URNs stay nested under it.
func addCollection(ctx context.Context, p *Processor, req *engine.Request, name, resourceType, rawURL, selfURN string) {
	if rawURL == "" {
		return
	}
	req.Document.Metadata.Links.SetSingle(name, engine.LinkCollection, selfURN+":"+name)

	child := engine.NewRequest("collection", rawURL, req.Policy)
	child.Context.SubType = resourceType
	if !engine.IsRootType(resourceType) {
		child.Context.Qualifier = selfURN
	}
	p.enqueue(ctx, req, queue.PriorityNormal, child)
}

// addRelation links name to a relation endpoint (an unrelated-owned
// collection, e.g. repo -> collaborators) and enqueues it as a collection
// whose discovered elements carry the relation descriptor back to this
// resource, per the spec's _addRelation.
func addRelation(ctx context.Context, p *Processor, req *engine.Request, name, resourceType, rawURL, selfURN, originType string) {
	if rawURL == "" {
		return
	}
	req.Document.Metadata.Links.SetSingle(name, engine.LinkRelation, selfURN+":"+name+":pages")

	child := engine.NewRequest("collection", rawURL, req.Policy)
	child.Context.SubType = resourceType
	child.Context.Relation = &engine.Relation{Origin: originType, Name: name, Type: resourceType}
	child.Context.Qualifier = selfURN
	p.enqueue(ctx, req, queue.PriorityNormal, child)
}

// processRelation is applied by the page handler when a collection Request
// carries a relation descriptor: it stamps the origin pointer, a siblings
// pointer back to this same relation's pagination, and a resources link
// enumerating every element URN on the page.
func processRelation(req *engine.Request) {
	rel := req.Context.Relation
	if rel == nil {
		return
	}

	req.Document.Metadata.Links.SetSingle("origin", engine.LinkResource, req.Context.Qualifier)
	if req.Document.Fields == nil {
		req.Document.Fields = map[string]any{}
	}
	req.Document.Fields["origin-type"] = rel.Origin

	req.Document.Metadata.Links.SetSingle("siblings", engine.LinkSiblings, req.Context.Qualifier+":"+rel.Name+":pages")

	targets := make([]string, 0, len(req.Document.Elements))
	for _, el := range req.Document.Elements {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		id, ok := obj["id"]
		if !ok {
			continue
		}
		targets = append(targets, engine.URN(rel.Type, fmt.Sprint(id)))
	}
	req.Document.Metadata.Links.SetList("resources", engine.LinkResource, targets)
}
