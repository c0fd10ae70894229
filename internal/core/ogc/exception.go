package ogc

import (
	"encoding/xml"
)

const schemaLocation = "http://www.opengis.net/ogc http://schemas.opengis.net/wms/1.3.0/exceptions_1_3_0.xsd"

// MissingRequestText is returned for an empty query string.
const MissingRequestText = "Veuillez spécifier une requête respectant le standard WMS, WFS ou WCS. " +
	"Pour davantage d'information sur les services web géospatiaux GeoMet du Service météorologique du Canada, " +
	"veuillez visiter https://www.canada.ca/fr/environnement-changement-climatique/services/conditions-meteorologiques-ressources-outils-generaux/outils-donnees-specialisees/services-web-geospatiaux.html / " +
	"Please specify a request according to the WMS, WFS or WCS standards. " +
	"For more information on the Meteorological Service of Canada GeoMet Geospatial Web Services, " +
	"please visit https://www.canada.ca/en/environment-climate-change/services/weather-general-tools-resources/weather-tools-specialized-data/geospatial-web-services.html"

type exceptionReport struct {
	XMLName        xml.Name    `xml:"ogc:ServiceExceptionReport"`
	Version        string      `xml:"version,attr"`
	NS             string      `xml:"xmlns:ogc,attr"`
	XSI            string      `xml:"xmlns:xsi,attr"`
	SchemaLocation string      `xml:"xsi:schemaLocation,attr"`
	Exceptions     []exception `xml:"ogc:ServiceException"`
}

type exception struct {
	Code    string `xml:"code,attr,omitempty"`
	Locator string `xml:"locator,attr,omitempty"`
	Text    string `xml:",chardata"`
}

// Exception renders a WMS 1.3.0 ServiceExceptionReport. Code and locator
// are omitted when empty.
func Exception(code, locator, text string) []byte {
	r := exceptionReport{
		Version:        "1.3.0",
		NS:             "http://www.opengis.net/ogc",
		XSI:            "http://www.w3.org/2001/XMLSchema-instance",
		SchemaLocation: schemaLocation,
		Exceptions:     []exception{{Code: code, Locator: locator, Text: text}},
	}
	// only strings, marshalling cannot fail
	b, _ := xml.MarshalIndent(r, "", "  ")
	return append([]byte(xml.Header), b...)
}
