package robot

import (
	"strings"
	"time"
)

// Transaction is one UNH..UNT message block decoded from a raw EDI document.
// Fields default to "N/A" so a sparse message still renders cleanly.
type Transaction struct {
	Type      string
	Function  string
	Container string
	ISOCode   string
	Status    string
	Date      string
	Transport string
	Booking   string
	Weight    string
	Genset    string
	Seals     []string
	Remarks   []string
}

const (
	fieldUnset  = "N/A"
	invalidDate = "Invalid Date"
)

// ParseTransactions splits raw document text into UNH..UNT message blocks and
// decodes each one. Segments outside a block (interchange envelope, stray
// text) are discarded; malformed content never aborts parsing, it only
// degrades individual fields. Non-EDI input yields an empty slice.
func ParseTransactions(content string) []Transaction {
	var out []Transaction
	var block []string
	inMessage := false
	for _, seg := range splitSegments(content) {
		switch {
		case strings.HasPrefix(seg, "UNH+"):
			inMessage = true
			block = []string{seg}
		case strings.HasPrefix(seg, "UNT+"):
			if inMessage {
				block = append(block, seg)
				out = append(out, parseTransaction(block))
				block = nil
				inMessage = false
			}
		default:
			if inMessage {
				block = append(block, seg)
			}
		}
	}
	return out
}

// ExtractContainers returns the distinct container numbers referenced by the
// document, in order of first appearance.
func ExtractContainers(content string) []string {
	var units []string
	seen := map[string]struct{}{}
	for _, tx := range ParseTransactions(content) {
		if tx.Container == fieldUnset {
			continue
		}
		if _, ok := seen[tx.Container]; ok {
			continue
		}
		seen[tx.Container] = struct{}{}
		units = append(units, tx.Container)
	}
	return units
}

// ExtractEventDate returns the business date carried by the document's
// event-timing DTM segments, or nil when absent or unparseable. A 203
// (date+time) qualifier value wins over an earlier date-only one.
func ExtractEventDate(content string) *time.Time {
	var found *time.Time
	for _, seg := range splitSegments(content) {
		parts := strings.Split(seg, "+")
		if parts[0] != "DTM" || len(parts) < 2 {
			continue
		}
		element := parts[1]
		if !eventDateQualifier(element) {
			continue
		}
		t, ok := parseDTMTime(element)
		if !ok {
			continue
		}
		if found == nil || dtmQualifier(element) == "203" {
			tt := t
			found = &tt
		}
	}
	return found
}

func splitSegments(content string) []string {
	flat := strings.NewReplacer("\r", "", "\n", "").Replace(content)
	raw := strings.Split(flat, "'")
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func parseTransaction(segments []string) Transaction {
	tx := Transaction{
		Type:      "UNKNOWN",
		Function:  "Unknown",
		Container: fieldUnset,
		ISOCode:   fieldUnset,
		Status:    fieldUnset,
		Date:      fieldUnset,
		Transport: fieldUnset,
		Booking:   fieldUnset,
		Weight:    fieldUnset,
		Genset:    fieldUnset,
	}
	for _, seg := range segments {
		parts := strings.Split(seg, "+")
		switch parts[0] {
		case "UNH":
			if len(parts) > 2 {
				tx.Type = firstComponent(parts[2])
			}
		case "BGM":
			if len(parts) > 1 {
				tx.Function = functionLabel(tx.Type, parts[1])
			}
		case "EQD":
			if len(parts) > 2 && parts[2] != "" {
				tx.Container = parts[2]
			}
			if len(parts) > 3 && parts[3] != "" {
				tx.ISOCode = firstComponent(parts[3])
			}
			if len(parts) >= 7 {
				switch parts[6] {
				case "4":
					tx.Status = "Empty (Vazio)"
				case "5":
					tx.Status = "Full (Cheio)"
				default:
					tx.Status = parts[6]
				}
			}
		case "DTM":
			if len(parts) < 2 || !eventDateQualifier(parts[1]) {
				continue
			}
			// Keep the first event date seen, but let a qualifier 203
			// (execution date/time) replace anything earlier.
			if tx.Date == fieldUnset || dtmQualifier(parts[1]) == "203" {
				tx.Date = formatDTM(parts[1])
			}
		case "TDT":
			if len(parts) > 1 {
				tx.Transport = transportLabel(parts)
			}
		case "SEL":
			if len(parts) > 1 && parts[1] != "" {
				tx.Seals = append(tx.Seals, parts[1])
			}
		case "FTX":
			if len(parts) > 4 && parts[4] != "" {
				tx.Remarks = append(tx.Remarks, parts[4])
			}
		case "EQA":
			if len(parts) > 2 {
				tx.Genset = parts[1] + ": " + parts[2]
			}
		case "RFF":
			if len(parts) > 1 && parts[1] != "" {
				ref := strings.Split(parts[1], ":")
				if len(ref) > 1 {
					switch ref[0] {
					case "BN":
						tx.Booking = ref[1]
					case "VON":
						tx.Booking = "Voyage: " + ref[1]
					}
				}
			}
		case "MEA":
			if len(parts) > 3 && strings.Contains(parts[3], "KGM") {
				comps := strings.Split(parts[3], ":")
				if len(comps) > 1 && comps[1] != "" {
					tx.Weight = comps[1] + " KG"
				}
			}
		}
	}
	return tx
}

// functionLabel maps a BGM function code to its terminal-operations meaning.
// CODECO covers gate movements, COARRI covers vessel operations; codes
// outside either family fall back to a generic label.
func functionLabel(msgType, code string) string {
	switch msgType {
	case "CODECO":
		switch code {
		case "34":
			return "Gate In (Entrada)"
		case "36":
			return "Gate Out (Saída)"
		}
	case "COARRI":
		switch code {
		case "46":
			return "Discharge (Descarga)"
		case "44":
			return "Load (Embarque)"
		case "98":
			return "Report (98)"
		}
	}
	if code == "270" {
		return "Status Report (270)"
	}
	return "Code " + code
}

func transportLabel(parts []string) string {
	name := ""
	last := parts[len(parts)-1]
	if strings.Contains(last, "::") {
		name = last[strings.LastIndex(last, "::")+2:]
	} else if strings.Contains(last, ":") && len(last) > 3 {
		name = last[strings.LastIndex(last, ":")+1:]
	}
	switch parts[1] {
	case "20":
		if name != "" {
			return "Vessel: " + name
		}
		return "Vessel"
	case "10":
		if name != "" {
			return "Vessel (Feeder): " + name
		}
		return "Vessel (Feeder)"
	case "1":
		truck := ""
		if len(parts) > 5 {
			truck = firstComponent(parts[5])
		}
		if truck == "" && len(parts) > 8 {
			truck = firstComponent(parts[8])
		}
		if truck != "" {
			return "Truck: " + truck
		}
		return "Truck"
	}
	return fieldUnset
}

// eventDateQualifier accepts only the DTM qualifiers relevant to event timing
// (arrival/departure/event/effective).
func eventDateQualifier(element string) bool {
	switch dtmQualifier(element) {
	case "7", "132", "133", "203":
		return true
	}
	return false
}

func dtmQualifier(element string) string {
	return strings.SplitN(element, ":", 2)[0]
}

func dtmFormatCode(element string) string {
	comps := strings.Split(element, ":")
	if len(comps) > 2 {
		return comps[2]
	}
	return ""
}

func parseDTMTime(element string) (time.Time, bool) {
	comps := strings.Split(element, ":")
	if len(comps) < 2 || comps[1] == "" {
		return time.Time{}, false
	}
	switch dtmFormatCode(element) {
	case "203":
		t, err := time.Parse("200601021504", comps[1])
		return t, err == nil
	case "102":
		t, err := time.Parse("20060102", comps[1])
		return t, err == nil
	}
	return time.Time{}, false
}

// formatDTM renders a DTM element for display. Unknown format codes pass the
// raw value through; a value that fails its declared format yields an
// explicit marker rather than an error.
func formatDTM(element string) string {
	comps := strings.Split(element, ":")
	if len(comps) < 2 {
		return invalidDate
	}
	switch dtmFormatCode(element) {
	case "203":
		t, err := time.Parse("200601021504", comps[1])
		if err != nil {
			return invalidDate
		}
		return t.Format("02/01/2006 15:04")
	case "102":
		t, err := time.Parse("20060102", comps[1])
		if err != nil {
			return invalidDate
		}
		return t.Format("02/01/2006")
	}
	return comps[1]
}

func firstComponent(element string) string {
	return strings.SplitN(element, ":", 2)[0]
}
