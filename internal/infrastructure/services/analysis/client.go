package analysis

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/kirillkom/case-intake/internal/core/domain"
	"github.com/kirillkom/case-intake/internal/infrastructure/httpjson"
)

// Client calls the inference service for cross-document verification and
// questionnaire organization.
type Client struct {
	http *httpjson.Client
}

func New(client *httpjson.Client) *Client {
	return &Client{http: client}
}

type crossVerifyRequest struct {
	Documents []domain.AcceptedDocument `json:"documents"`
}

type organizeRequest struct {
	QuestionnaireTemplateID string `json:"questionnaireTemplateId"`
}

func (c *Client) CrossVerify(ctx context.Context, req domain.CrossVerifyRequest) (domain.VerificationReport, error) {
	if strings.TrimSpace(req.CaseID) == "" {
		return domain.VerificationReport{}, domain.WrapError(domain.ErrInvalidInput, "cross verify", errors.New("case id is required"))
	}
	docs := req.Documents
	if docs == nil {
		docs = []domain.AcceptedDocument{}
	}

	var report domain.VerificationReport
	path := "/api/cases/" + url.PathEscape(req.CaseID) + "/cross-verify"
	if err := c.http.Post(ctx, path, crossVerifyRequest{Documents: docs}, &report, "cross_verify"); err != nil {
		return domain.VerificationReport{}, err
	}
	return report, nil
}

func (c *Client) Organize(ctx context.Context, caseID, templateID string) (domain.OrganizedDocuments, error) {
	if strings.TrimSpace(caseID) == "" || strings.TrimSpace(templateID) == "" {
		return domain.OrganizedDocuments{}, domain.WrapError(domain.ErrInvalidInput, "organize", errors.New("case id and template id are required"))
	}

	var out domain.OrganizedDocuments
	path := "/api/cases/" + url.PathEscape(caseID) + "/organize"
	if err := c.http.Post(ctx, path, organizeRequest{QuestionnaireTemplateID: templateID}, &out, "organize"); err != nil {
		return domain.OrganizedDocuments{}, err
	}
	if out.RawDocuments == nil {
		out.RawDocuments = map[string]any{}
	}
	if out.ProcessedInformation == nil {
		out.ProcessedInformation = map[string]map[string]any{}
	}
	return out, nil
}
