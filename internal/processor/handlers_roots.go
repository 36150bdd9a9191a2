package processor

import (
	"context"
	"fmt"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

// ref reads a nested {id, url} reference out of an object-shaped document
// field, the common shape the remote API uses for embedded pointers to
// other resources (owner, user, repository, ...).
func ref(doc *engine.Document, field string) (rawURL, id string, ok bool) {
	v, present := doc.Get(field)
	if !present {
		return "", "", false
	}
	obj, isObj := v.(map[string]any)
	if !isObj {
		return "", "", false
	}
	u, _ := obj["url"].(string)
	rid := fmt.Sprint(obj["id"])
	if u == "" || obj["id"] == nil {
		return "", "", false
	}
	return u, rid, true
}

func docID(doc *engine.Document) string {
	v, ok := doc.Get("id")
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}

func docString(doc *engine.Document, field string) string {
	v, ok := doc.Get(field)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// handleOrg links an organisation to its repositories, teams and members.
func handleOrg(ctx context.Context, p *Processor, req *engine.Request) error {
	doc := req.Document
	self := setSelf(req, "org", docID(doc))

	if u := docString(doc, "repos_url"); u != "" {
		addCollection(ctx, p, req, "repos", "repo", u, self)
	}
	if u := docString(doc, "teams_url"); u != "" {
		addCollection(ctx, p, req, "teams", "team", u, self)
	}
	if u := docString(doc, "members_url"); u != "" {
		addRelation(ctx, p, req, "members", "user", u, self, "org")
	}
	return nil
}

// handleUser links a user to their owned repositories.
func handleUser(ctx context.Context, p *Processor, req *engine.Request) error {
	doc := req.Document
	self := setSelf(req, "user", docID(doc))

	if u := docString(doc, "repos_url"); u != "" {
		addCollection(ctx, p, req, "repos", "repo", u, self)
	}
	return nil
}

// handleRepo links a repository to its owner, teams, commits and issues.
func handleRepo(ctx context.Context, p *Processor, req *engine.Request) error {
	doc := req.Document
	self := setSelf(req, "repo", docID(doc))

	if u, id, ok := ref(doc, "owner"); ok {
		ownerType := "user"
		if t := docString(doc, "owner_type"); t == "Organization" {
			ownerType = "org"
		}
		addRoot(ctx, p, req, "owner", ownerType, u, id)
	}
	if u := docString(doc, "teams_url"); u != "" {
		addRelation(ctx, p, req, "teams", "team", u, self, "repo")
	}
	if u := docString(doc, "commits_url"); u != "" {
		addCollection(ctx, p, req, "commits", "commit", trimTemplate(u), self)
	}
	if u := docString(doc, "issues_url"); u != "" {
		addCollection(ctx, p, req, "issues", "issue", trimTemplate(u), self)
	}
	if u := docString(doc, "collaborators_url"); u != "" {
		addRelation(ctx, p, req, "collaborators", "user", trimTemplate(u), self, "repo")
	}
	return nil
}

// handleTeam links a team back to its owning organisation.
func handleTeam(ctx context.Context, p *Processor, req *engine.Request) error {
	doc := req.Document
	setSelf(req, "team", docID(doc))

	if u, id, ok := ref(doc, "organization"); ok {
		addRoot(ctx, p, req, "organization", "org", u, id)
	}
	return nil
}

// handleCommit links a commit to its repository and author.
func handleCommit(ctx context.Context, p *Processor, req *engine.Request) error {
	doc := req.Document
	sha := docString(doc, "sha")
	if sha == "" {
		sha = docID(doc)
	}
	setSelf(req, "commit", sha)

	if u, id, ok := ref(doc, "author"); ok {
		addRoot(ctx, p, req, "author", "user", u, id)
	}
	return nil
}

// handleIssue links an issue to its repository and comment thread.
func handleIssue(ctx context.Context, p *Processor, req *engine.Request) error {
	doc := req.Document
	self := setSelf(req, "issue", docID(doc))

	if u, id, ok := ref(doc, "user"); ok {
		addRoot(ctx, p, req, "user", "user", u, id)
	}
	if u := docString(doc, "comments_url"); u != "" {
		addCollection(ctx, p, req, "comments", "issue_comment", u, self)
	}
	return nil
}

// handleIssueComment links a comment back to its author.
func handleIssueComment(ctx context.Context, p *Processor, req *engine.Request) error {
	doc := req.Document
	setSelf(req, "issue_comment", docID(doc))

	if u, id, ok := ref(doc, "user"); ok {
		addRoot(ctx, p, req, "user", "user", u, id)
	}
	return nil
}

// trimTemplate strips a trailing URI template suffix such as
// "{/sha}" or "{/number}" that some hypermedia list endpoints embed in
// their self-referencing URL fields.
func trimTemplate(u string) string {
	if idx := indexByte(u, '{'); idx >= 0 {
		return u[:idx]
	}
	return u
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
