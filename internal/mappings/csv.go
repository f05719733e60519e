// Package mappings provides persistent storage for the concept mapping set.
// It stores manual curator decisions and the derived rows the enrichment
// engine regenerates from them.
package mappings

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// csvHeader is the column layout of the dictionary exchange format.
var csvHeader = []string{"general_concept_id", "omop_concept_id", "unit_concept_id", "recommended", "source"}

// writeCSV writes the mapping set in the dictionary exchange format.
func writeCSV(w io.Writer, mappings []domain.ConceptMapping) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := range mappings {
		m := &mappings[i]
		unit := ""
		if m.UnitConceptID != nil {
			unit = strconv.FormatInt(*m.UnitConceptID, 10)
		}
		record := []string{
			strconv.FormatInt(m.GeneralConceptID, 10),
			strconv.FormatInt(m.OMOPConceptID, 10),
			unit,
			strconv.FormatBool(m.Recommended),
			string(m.Provenance),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write mapping row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// readCSV parses the dictionary exchange format. Malformed rows are returned
// alongside the parsed mappings so callers can report them without aborting
// the whole import.
func readCSV(r io.Reader) (mappings []domain.ConceptMapping, malformed int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < len(csvHeader) || !strings.EqualFold(header[0], csvHeader[0]) {
		return nil, 0, fmt.Errorf("unexpected header %v", header)
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			malformed++
			continue
		}
		if len(record) < len(csvHeader) {
			malformed++
			continue
		}

		m, ok := parseRecord(record)
		if !ok {
			malformed++
			continue
		}
		mappings = append(mappings, m)
	}

	return mappings, malformed, nil
}

func parseRecord(record []string) (domain.ConceptMapping, bool) {
	generalID, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil {
		return domain.ConceptMapping{}, false
	}
	omopID, err := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 64)
	if err != nil {
		return domain.ConceptMapping{}, false
	}

	var unit *int64
	if raw := strings.TrimSpace(record[2]); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.ConceptMapping{}, false
		}
		unit = &v
	}

	recommended, err := strconv.ParseBool(strings.TrimSpace(record[3]))
	if err != nil {
		return domain.ConceptMapping{}, false
	}

	provenance := domain.Provenance(strings.TrimSpace(record[4]))
	if provenance.Validate() != nil {
		return domain.ConceptMapping{}, false
	}

	m := domain.ConceptMapping{
		GeneralConceptID: generalID,
		OMOPConceptID:    omopID,
		UnitConceptID:    unit,
		Recommended:      recommended,
		Provenance:       provenance,
	}
	if m.Validate() != nil {
		return domain.ConceptMapping{}, false
	}
	return m, true
}
