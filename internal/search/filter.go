package search

import (
	"fmt"
	"strings"

	"deal-service/internal/domain"

	"github.com/google/uuid"
)

// Filter is a WHERE clause over the deal table (aliased d) with its
// positional arguments ($1..$n).
type Filter struct {
	Where string
	Args  []any
}

// Deny returns a filter that matches nothing.
func Deny() Filter {
	return Filter{Where: "FALSE"}
}

// Denied reports whether the filter can never match.
func (f Filter) Denied() bool {
	return f.Where == "FALSE"
}

type builder struct {
	where []string
	args  []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) add(cond string) {
	b.where = append(b.where, cond)
}

// Build translates a (scoped) payload into a filter. Inactive deals are
// always excluded; ranges apply only when both bounds are present.
func Build(p Payload) Filter {
	b := &builder{}
	b.add("d.is_active = true")

	if p.ID != nil {
		b.add("d.id = " + b.arg(*p.ID))
	}
	if p.Description != nil {
		b.add("d.description = " + b.arg(*p.Description))
	}
	if p.AgreementNumber != nil {
		b.add(fmt.Sprintf(`d.agreement_number LIKE %s ESCAPE '\'`, b.arg(EscapeLike(*p.AgreementNumber))))
	}
	if p.AgreementDateFrom != nil && p.AgreementDateTo != nil {
		b.add(fmt.Sprintf("d.agreement_date BETWEEN %s AND %s", b.arg(*p.AgreementDateFrom), b.arg(*p.AgreementDateTo)))
	}
	if p.AvailabilityDateFrom != nil && p.AvailabilityDateTo != nil {
		b.add(fmt.Sprintf("d.availability_date BETWEEN %s AND %s", b.arg(*p.AvailabilityDateFrom), b.arg(*p.AvailabilityDateTo)))
	}
	if len(p.Types) > 0 {
		b.add("d.type IN (" + b.list(p.Types) + ")")
	}
	if len(p.Statuses) > 0 {
		b.add("d.status IN (" + b.list(p.Statuses) + ")")
	}
	if p.CloseDtFrom != nil && p.CloseDtTo != nil {
		b.add(fmt.Sprintf("d.close_dt BETWEEN %s AND %s", b.arg(*p.CloseDtFrom), b.arg(*p.CloseDtTo)))
	}
	if p.ContractorSearchValue != nil {
		b.add(b.contractorCondition(*p.ContractorSearchValue))
	}

	return Filter{Where: strings.Join(b.where, " AND "), Args: b.args}
}

func (b *builder) list(values []string) string {
	ph := make([]string, 0, len(values))
	for _, v := range values {
		ph = append(ph, b.arg(v))
	}
	return strings.Join(ph, ", ")
}

// contractorCondition matches deals having a borrower or warranty party whose
// external id equals the term (when it is a UUID, compared case-insensitively)
// or whose name or tax id contains it.
func (b *builder) contractorCondition(term string) string {
	var match string
	if id, err := uuid.Parse(term); err == nil {
		match = "lower(dc.contractor_id) = " + b.arg(id.String())
	} else {
		ph := b.arg(EscapeLike(term))
		match = fmt.Sprintf(`dc.name LIKE %[1]s ESCAPE '\' OR dc.inn LIKE %[1]s ESCAPE '\'`, ph)
	}

	return fmt.Sprintf(`EXISTS (
			SELECT 1
			FROM deal_contractor dc
			JOIN deal_contractor_role dcr ON dcr.deal_contractor_id = dc.id
			JOIN contractor_role cr ON cr.id = dcr.contractor_role_id
			WHERE dc.deal_id = d.id
			  AND dc.is_active = true
			  AND dcr.is_active = true
			  AND cr.category IN ('%s', '%s')
			  AND (%s)
		)`, domain.RoleCategoryBorrower, domain.RoleCategoryWarranty, match)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE metacharacters in v and wraps it for substring
// matching. The result must be used with ESCAPE '\'.
func EscapeLike(v string) string {
	return "%" + likeEscaper.Replace(v) + "%"
}
