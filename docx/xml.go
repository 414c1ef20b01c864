package docx

import "encoding/xml"

const (
	nsW   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsRel = "http://schemas.openxmlformats.org/package/2006/relationships"

	headingStyle = "Heading1"
)

// paragraphXML represents a paragraph element (<w:p>).
type paragraphXML struct {
	Properties struct {
		Style struct {
			Val string `xml:"val,attr"`
		} `xml:"pStyle"`
	} `xml:"pPr"`
	Runs []runXML `xml:"r"`
}

// runXML keeps the run's children in document order so text and breaks
// interleave correctly.
type runXML struct {
	Content []runContentXML `xml:",any"`
}

type runContentXML struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type tableXML struct {
	Rows []tableRowXML `xml:"tr"`
}

type tableRowXML struct {
	Properties struct {
		Header *struct{} `xml:"tblHeader"`
	} `xml:"trPr"`
	Cells []tableCellXML `xml:"tc"`
}

type tableCellXML struct {
	Paragraphs []paragraphXML `xml:"p"`
}

func (p paragraphXML) text() string {
	var b []byte
	for _, r := range p.Runs {
		for _, c := range r.Content {
			switch c.XMLName.Local {
			case "t":
				b = append(b, c.Value...)
			case "br", "cr":
				b = append(b, '\n')
			case "tab":
				b = append(b, '\t')
			}
		}
	}
	return string(b)
}

func (c tableCellXML) text() string {
	var b []byte
	for i, p := range c.Paragraphs {
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, p.text()...)
	}
	return string(b)
}
