package integration

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/devflow/internal/core"
	"github.com/valter-silva-au/devflow/pkg/models"
)

const (
	// DefaultNotionURL is the Notion REST API root.
	DefaultNotionURL = "https://api.notion.com/v1"
	notionVersion    = "2022-06-28"
	notionPageSize   = 100
	// notionMaxText is the per-item limit Notion puts on rich text content.
	notionMaxText = 2000
)

// NotionSchema names the database properties tasks are decoded from. The
// title comes from whichever property has type "title"; the ID from the
// unique_id property, falling back to the page id.
type NotionSchema struct {
	Status       string
	Priority     string
	DueDate      string
	Workstream   string
	Project      string
	Epic         string
	MergeRequest string
}

// NotionSchemaFromConfig applies the configured property names over the
// stock ones.
func NotionSchemaFromConfig(props models.TaskPropertiesConfig) NotionSchema {
	schema := DefaultNotionSchema()
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&schema.Status, props.Status)
	override(&schema.Priority, props.Priority)
	override(&schema.DueDate, props.DueDate)
	override(&schema.Workstream, props.Workstream)
	override(&schema.Project, props.Project)
	override(&schema.Epic, props.Epic)
	override(&schema.MergeRequest, props.MergeRequest)
	return schema
}

// DefaultNotionSchema returns the property names of the stock task database.
func DefaultNotionSchema() NotionSchema {
	return NotionSchema{
		Status:       "Status",
		Priority:     "Priority",
		DueDate:      "Due",
		Workstream:   "Workstream",
		Project:      "Project",
		Epic:         "Epic",
		MergeRequest: "MR",
	}
}

// NotionTaskStore implements core.TaskStore over a Notion database.
type NotionTaskStore struct {
	api    *jsonAPI
	dbID   string
	schema NotionSchema

	mu      sync.Mutex
	pageIDs map[string]string // task id -> page id
}

// NewNotionTaskStore returns a task store over the database databaseID. A
// nil client uses a default with a timeout.
func NewNotionTaskStore(baseURL, databaseID, token string, schema NotionSchema, client *http.Client) *NotionTaskStore {
	if baseURL == "" {
		baseURL = DefaultNotionURL
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	headers.Set("Notion-Version", notionVersion)
	return &NotionTaskStore{
		api:     newJSONAPI("notion", baseURL, client, headers),
		dbID:    compactID(databaseID),
		schema:  schema,
		pageIDs: make(map[string]string),
	}
}

type notionPage struct {
	Object         string                    `json:"object"`
	ID             string                    `json:"id"`
	URL            string                    `json:"url"`
	Archived       bool                      `json:"archived"`
	InTrash        bool                      `json:"in_trash"`
	LastEditedTime string                    `json:"last_edited_time"`
	Parent         notionParent              `json:"parent"`
	Properties     map[string]notionProperty `json:"properties"`
}

type notionParent struct {
	Type       string `json:"type"`
	DatabaseID string `json:"database_id,omitempty"`
}

type notionRichText struct {
	PlainText string `json:"plain_text"`
}

type notionOption struct {
	Name string `json:"name"`
}

type notionDate struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

type notionUser struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type notionProperty struct {
	Type        string           `json:"type"`
	Title       []notionRichText `json:"title,omitempty"`
	RichText    []notionRichText `json:"rich_text,omitempty"`
	Select      *notionOption    `json:"select,omitempty"`
	Status      *notionOption    `json:"status,omitempty"`
	MultiSelect []notionOption   `json:"multi_select,omitempty"`
	Date        *notionDate      `json:"date,omitempty"`
	Relation    []struct {
		ID string `json:"id"`
	} `json:"relation,omitempty"`
	People         []notionUser `json:"people,omitempty"`
	Checkbox       bool         `json:"checkbox,omitempty"`
	Number         *float64     `json:"number,omitempty"`
	URL            *string      `json:"url,omitempty"`
	Email          *string      `json:"email,omitempty"`
	PhoneNumber    *string      `json:"phone_number,omitempty"`
	CreatedTime    string       `json:"created_time,omitempty"`
	LastEditedTime string       `json:"last_edited_time,omitempty"`
	CreatedBy      *notionUser  `json:"created_by,omitempty"`
	LastEditedBy   *notionUser  `json:"last_edited_by,omitempty"`
	UniqueID       *struct {
		Prefix *string `json:"prefix"`
		Number int     `json:"number"`
	} `json:"unique_id,omitempty"`
	Formula *notionComputed `json:"formula,omitempty"`
	Rollup  *notionComputed `json:"rollup,omitempty"`
}

// notionComputed is the value of a formula or rollup property.
type notionComputed struct {
	Type    string           `json:"type"`
	String  string           `json:"string,omitempty"`
	Boolean bool             `json:"boolean,omitempty"`
	Number  *float64         `json:"number,omitempty"`
	Date    *notionDate      `json:"date,omitempty"`
	Array   []notionProperty `json:"array,omitempty"`
}

func (c *notionComputed) values() []string {
	if c == nil {
		return nil
	}
	switch c.Type {
	case "string":
		if c.String != "" {
			return []string{c.String}
		}
	case "number":
		if c.Number != nil {
			return []string{formatNumber(*c.Number)}
		}
	case "date":
		if c.Date != nil && c.Date.Start != "" {
			return []string{c.Date.Start}
		}
	case "array":
		var out []string
		for _, item := range c.Array {
			out = append(out, item.values()...)
		}
		return out
	}
	return nil
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func userName(u notionUser) string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

// values returns every value of a multi-valued property, or the single
// text value of any other property.
func (p notionProperty) values() []string {
	var out []string
	switch p.Type {
	case "multi_select":
		for _, o := range p.MultiSelect {
			out = append(out, o.Name)
		}
		return out
	case "people":
		for _, u := range p.People {
			out = append(out, userName(u))
		}
		return out
	case "relation":
		for _, r := range p.Relation {
			out = append(out, r.ID)
		}
		return out
	case "formula":
		return p.Formula.values()
	case "rollup":
		return p.Rollup.values()
	}
	if v := p.text(); v != "" {
		return []string{v}
	}
	return nil
}

// text renders the property as a plain string. Multi-valued properties are
// joined with commas, except relations which yield their first page id.
func (p notionProperty) text() string {
	switch p.Type {
	case "title":
		return plainText(p.Title)
	case "rich_text":
		return plainText(p.RichText)
	case "select":
		if p.Select != nil {
			return p.Select.Name
		}
	case "status":
		if p.Status != nil {
			return p.Status.Name
		}
	case "multi_select", "people", "formula", "rollup":
		return strings.Join(p.values(), ", ")
	case "number":
		if p.Number != nil {
			return formatNumber(*p.Number)
		}
	case "url":
		if p.URL != nil {
			return *p.URL
		}
	case "email":
		if p.Email != nil {
			return *p.Email
		}
	case "phone_number":
		if p.PhoneNumber != nil {
			return *p.PhoneNumber
		}
	case "date":
		if p.Date != nil {
			return p.Date.Start
		}
	case "created_time":
		return p.CreatedTime
	case "last_edited_time":
		return p.LastEditedTime
	case "created_by":
		if p.CreatedBy != nil {
			return userName(*p.CreatedBy)
		}
	case "last_edited_by":
		if p.LastEditedBy != nil {
			return userName(*p.LastEditedBy)
		}
	case "unique_id":
		if p.UniqueID != nil {
			n := strconv.Itoa(p.UniqueID.Number)
			if p.UniqueID.Prefix != nil && *p.UniqueID.Prefix != "" {
				return *p.UniqueID.Prefix + "-" + n
			}
			return n
		}
	case "relation":
		if len(p.Relation) > 0 {
			return p.Relation[0].ID
		}
	}
	return ""
}

func (p notionProperty) truthy() bool {
	switch p.Type {
	case "checkbox":
		return p.Checkbox
	case "formula":
		return p.Formula != nil && p.Formula.Type == "boolean" && p.Formula.Boolean
	case "select", "status", "rich_text":
		v := strings.ToLower(p.text())
		return v == "yes" || v == "true" || v == "epic"
	}
	return false
}

func plainText(items []notionRichText) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString(it.PlainText)
	}
	return b.String()
}

var hexID = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// compactID strips the dashes Notion accepts but does not require in ids.
func compactID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", "")
}

func isPageID(id string) bool {
	return hexID.MatchString(compactID(id))
}

// decode turns a page into a task. Unknown status labels decode as ToDo.
func (n *NotionTaskStore) decode(page notionPage) models.Task {
	task := models.Task{ID: compactID(page.ID), URL: page.URL}
	for _, prop := range page.Properties {
		switch prop.Type {
		case "title":
			task.Title = prop.text()
		case "unique_id":
			if id := prop.text(); id != "" {
				task.ID = id
			}
		}
	}

	props := page.Properties
	if status, ok := models.ParseStatus(props[n.schema.Status].text()); ok {
		task.Status = status
	} else {
		task.Status = models.StatusToDo
	}
	if p, ok := models.ParsePriority(props[n.schema.Priority].text()); ok {
		task.Priority = p
	}
	if due := props[n.schema.DueDate].text(); due != "" {
		if d, err := parseNotionDate(due); err == nil {
			task.DueDate = &d
		}
	}
	if ws := props[n.schema.Workstream].values(); len(ws) > 0 {
		task.Workstream = ws[0]
		if len(ws) > 1 {
			task.Workstreams = ws
		}
	}
	task.ProjectRef = compactID(props[n.schema.Project].text())
	task.IsEpic = props[n.schema.Epic].truthy()
	task.MergeRequestURL = props[n.schema.MergeRequest].text()
	if edited, err := time.Parse(time.RFC3339, page.LastEditedTime); err == nil {
		task.UpdatedAt = edited
	}
	return task
}

// parseNotionDate accepts a date or a date-time and keeps the calendar date.
func parseNotionDate(s string) (time.Time, error) {
	if len(s) >= len(time.DateOnly) {
		if d, err := time.Parse(time.DateOnly, s[:len(time.DateOnly)]); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing date %q", s)
}

func (n *NotionTaskStore) remember(taskID, pageID string) {
	n.mu.Lock()
	n.pageIDs[taskID] = pageID
	n.mu.Unlock()
}

func (n *NotionTaskStore) inScope(page notionPage, scopeID string) bool {
	if page.Object != "page" || page.Archived || page.InTrash {
		return false
	}
	if scopeID == "" {
		return true
	}
	return compactID(page.Parent.DatabaseID) == compactID(scopeID)
}

type notionSearchRequest struct {
	Query    string            `json:"query"`
	Filter   map[string]string `json:"filter,omitempty"`
	PageSize int               `json:"page_size,omitempty"`
}

type notionList struct {
	Results    []notionPage `json:"results"`
	HasMore    bool         `json:"has_more"`
	NextCursor string       `json:"next_cursor"`
}

// Search runs one workspace search and keeps pages of the scope database.
// An empty scopeID falls back to the store's database.
func (n *NotionTaskStore) Search(ctx context.Context, query, scopeID string) ([]models.SearchHit, error) {
	if scopeID == "" {
		scopeID = n.dbID
	}
	req := notionSearchRequest{
		Query:    query,
		Filter:   map[string]string{"property": "object", "value": "page"},
		PageSize: notionPageSize,
	}
	var resp notionList
	if err := n.api.do(ctx, http.MethodPost, "/search", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("searching tasks for %q: %w", query, err)
	}

	var hits []models.SearchHit
	for _, page := range resp.Results {
		if !n.inScope(page, scopeID) {
			continue
		}
		task := n.decode(page)
		n.remember(task.ID, compactID(page.ID))
		hits = append(hits, models.SearchHit{TaskID: task.ID, QueryIndex: len(hits), Highlight: task.Title})
	}
	return hits, nil
}

// Fetch loads one task by its task id or page id.
func (n *NotionTaskStore) Fetch(ctx context.Context, taskID string) (*models.Task, error) {
	page, err := n.page(ctx, taskID)
	if err != nil {
		return nil, err
	}
	task := n.decode(*page)
	return &task, nil
}

// page resolves taskID to its page. Page ids are fetched directly; unique
// ids go through the cache and then a database query.
func (n *NotionTaskStore) page(ctx context.Context, taskID string) (*notionPage, error) {
	var pageID string
	if isPageID(taskID) {
		pageID = compactID(taskID)
	} else {
		n.mu.Lock()
		pageID = n.pageIDs[taskID]
		n.mu.Unlock()
	}

	if pageID == "" {
		page, err := n.queryByUniqueID(ctx, taskID)
		if err != nil {
			return nil, err
		}
		n.remember(taskID, compactID(page.ID))
		return page, nil
	}

	var page notionPage
	if err := n.api.do(ctx, http.MethodGet, "/pages/"+pageID, nil, nil, &page); err != nil {
		return nil, fmt.Errorf("fetching task %s: %w", taskID, err)
	}
	if page.Archived || page.InTrash {
		return nil, fmt.Errorf("fetching task %s: archived: %w", taskID, core.ErrNotFound)
	}
	return &page, nil
}

var uniqueIDPattern = regexp.MustCompile(`^(?:[A-Za-z]+-)?(\d+)$`)

// queryByUniqueID finds the page whose unique_id matches taskID.
func (n *NotionTaskStore) queryByUniqueID(ctx context.Context, taskID string) (*notionPage, error) {
	m := uniqueIDPattern.FindStringSubmatch(strings.TrimSpace(taskID))
	if m == nil || n.dbID == "" {
		return nil, fmt.Errorf("fetching task %s: unrecognised id: %w", taskID, core.ErrNotFound)
	}
	number, _ := strconv.Atoi(m[1])

	prop, err := n.uniqueIDProperty(ctx)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"filter":    map[string]any{"property": prop, "unique_id": map[string]int{"equals": number}},
		"page_size": 1,
	}
	var resp notionList
	if err := n.api.do(ctx, http.MethodPost, "/databases/"+n.dbID+"/query", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("fetching task %s: %w", taskID, err)
	}
	for _, page := range resp.Results {
		if n.decode(page).ID == taskID {
			return &page, nil
		}
	}
	return nil, fmt.Errorf("fetching task %s: %w", taskID, core.ErrNotFound)
}

// uniqueIDProperty reads the database schema for the unique_id property name.
func (n *NotionTaskStore) uniqueIDProperty(ctx context.Context) (string, error) {
	var db struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	}
	if err := n.api.do(ctx, http.MethodGet, "/databases/"+n.dbID, nil, nil, &db); err != nil {
		return "", fmt.Errorf("reading database schema: %w", err)
	}
	for name, p := range db.Properties {
		if p.Type == "unique_id" {
			return name, nil
		}
	}
	return "", fmt.Errorf("database %s has no unique_id property: %w", n.dbID, core.ErrNotFound)
}

// UpdateStatus sets the status property, writing it as a status or select
// value to match the property's type.
func (n *NotionTaskStore) UpdateStatus(ctx context.Context, taskID string, status models.TaskStatus) error {
	page, err := n.page(ctx, taskID)
	if err != nil {
		return err
	}
	kind := "status"
	if p, ok := page.Properties[n.schema.Status]; ok && p.Type == "select" {
		kind = "select"
	}
	body := map[string]any{
		"properties": map[string]any{
			n.schema.Status: map[string]any{kind: map[string]string{"name": status.Label()}},
		},
	}
	if err := n.api.do(ctx, http.MethodPatch, "/pages/"+compactID(page.ID), nil, body, nil); err != nil {
		return fmt.Errorf("updating status of %s: %w", taskID, err)
	}
	return nil
}

// AppendContent appends text to the page as paragraph blocks, one per line.
func (n *NotionTaskStore) AppendContent(ctx context.Context, taskID, text string) error {
	page, err := n.page(ctx, taskID)
	if err != nil {
		return err
	}
	body := map[string]any{"children": paragraphBlocks(text)}
	if err := n.api.do(ctx, http.MethodPatch, "/blocks/"+compactID(page.ID)+"/children", nil, body, nil); err != nil {
		return fmt.Errorf("appending to %s: %w", taskID, err)
	}
	return nil
}

type notionBlock struct {
	Object    string         `json:"object"`
	Type      string         `json:"type"`
	Paragraph notionParaBody `json:"paragraph"`
}

type notionParaBody struct {
	RichText []notionTextItem `json:"rich_text"`
}

type notionTextItem struct {
	Type string `json:"type"`
	Text struct {
		Content string `json:"content"`
	} `json:"text"`
}

func paragraphBlocks(text string) []notionBlock {
	var blocks []notionBlock
	for _, line := range strings.Split(text, "\n") {
		items := []notionTextItem{}
		for _, chunk := range chunkRunes(line, notionMaxText) {
			item := notionTextItem{Type: "text"}
			item.Text.Content = chunk
			items = append(items, item)
		}
		blocks = append(blocks, notionBlock{Object: "block", Type: "paragraph", Paragraph: notionParaBody{RichText: items}})
	}
	return blocks
}

func chunkRunes(s string, size int) []string {
	if s == "" {
		return nil
	}
	r := []rune(s)
	var out []string
	for len(r) > size {
		out = append(out, string(r[:size]))
		r = r[size:]
	}
	return append(out, string(r))
}
