package qbwc

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// The Web Connector speaks SOAP 1.1 with a fixed set of small message
// shapes, so requests are decoded with encoding/xml and responses are
// rendered from templates.

type requestEnvelope struct {
	XMLName xml.Name    `xml:"Envelope"`
	Body    requestBody `xml:"Body"`
}

type requestBody struct {
	Authenticate       *authenticateCall    `xml:"authenticate"`
	SendRequestXML     *sendRequestCall     `xml:"sendRequestXML"`
	ReceiveResponseXML *receiveResponseCall `xml:"receiveResponseXML"`
	CloseConnection    *closeConnectionCall `xml:"closeConnection"`
	ConnectionError    *connectionErrorCall `xml:"connectionError"`
	GetLastError       *getLastErrorCall    `xml:"getLastError"`
}

type authenticateCall struct {
	Username string `xml:"strUserName"`
	Password string `xml:"strPassword"`
}

type sendRequestCall struct {
	Ticket          string `xml:"ticket"`
	HCPResponse     string `xml:"strHCPResponse"`
	CompanyFileName string `xml:"strCompanyFileName"`
	Country         string `xml:"qbXMLCountry"`
	MajorVers       string `xml:"qbXMLMajorVers"`
	MinorVers       string `xml:"qbXMLMinorVers"`
}

type receiveResponseCall struct {
	Ticket   string `xml:"ticket"`
	Response string `xml:"response"`
	HResult  string `xml:"hresult"`
	Message  string `xml:"message"`
}

type closeConnectionCall struct {
	Ticket string `xml:"ticket"`
}

type connectionErrorCall struct {
	Ticket  string `xml:"ticket"`
	HResult string `xml:"hresult"`
	Message string `xml:"message"`
}

type getLastErrorCall struct {
	Ticket string `xml:"ticket"`
}

func parseRequest(raw []byte) (*requestEnvelope, error) {
	var env requestEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed soap envelope: %w", err)
	}
	return &env, nil
}

const soapEnvelope = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema">
<soap:Body>%s</soap:Body>
</soap:Envelope>`

const qbwcNamespace = "http://developer.intuit.com/"

func renderAuthenticateResponse(ticket, second string) string {
	body := fmt.Sprintf(
		`<authenticateResponse xmlns="%s"><authenticateReturn><string>%s</string><string>%s</string></authenticateReturn></authenticateResponse>`,
		qbwcNamespace, soapEscape(ticket), soapEscape(second),
	)
	return fmt.Sprintf(soapEnvelope, body)
}

func renderStringResponse(operation, value string) string {
	body := fmt.Sprintf(
		`<%[1]sResponse xmlns="%[2]s"><%[1]sResult>%[3]s</%[1]sResult></%[1]sResponse>`,
		operation, qbwcNamespace, soapEscape(value),
	)
	return fmt.Sprintf(soapEnvelope, body)
}

func renderIntResponse(operation string, value int) string {
	body := fmt.Sprintf(
		`<%[1]sResponse xmlns="%[2]s"><%[1]sResult>%[3]d</%[1]sResult></%[1]sResponse>`,
		operation, qbwcNamespace, value,
	)
	return fmt.Sprintf(soapEnvelope, body)
}

var soapEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

func soapEscape(s string) string {
	return soapEscaper.Replace(s)
}
