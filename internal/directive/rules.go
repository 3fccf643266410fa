package directive

import (
	"regexp"
)

// fieldRule maps a line pattern to the field it declares. When the line
// carries a parenthetical option list, the field renders as selectKind.
type fieldRule struct {
	id         string
	label      string
	pattern    *regexp.Regexp
	selectKind FieldKind
}

func rule(id, label, pattern string, selectKind FieldKind) fieldRule {
	return fieldRule{
		id:         id,
		label:      label,
		pattern:    regexp.MustCompile(`(?i)` + pattern),
		selectKind: selectKind,
	}
}

// genericRules is tested in order against every candidate line. The first
// matching rule owns the line; a rule whose id was already taken is dropped.
var genericRules = []fieldRule{
	rule("application_type", "Tipo de aplicación", `(?:application type|type of application|tipo de aplicaci[oó]n)`, FieldSingleSelect),
	rule("expected_scale", "Escala esperada", `(?:expected scale|\bscale\b|\bescala\b|usuarios (?:esperados|concurrentes)|expected users)`, FieldSingleSelect),
	rule("special_requirements", "Requisitos especiales", `(?:special requirements|requisitos especiales|requerimientos especiales)`, FieldMultiSelect),
	rule("frontend", "Frontend", `\bfront-?end\b`, FieldSingleSelect),
	rule("backend", "Backend", `\bback-?end\b`, FieldSingleSelect),
	rule("database", "Base de datos", `(?:\bdatabase\b|base de datos|\bdb\b)`, FieldSingleSelect),
	rule("devops", "DevOps / Despliegue", `(?:\bdevops\b|\bdeploy(?:ment)?\b|\bdespliegue\b|\bhosting\b|\binfraestructura\b)`, FieldMultiSelect),
	rule("name", "Nombre", `\b(?:name|nombre)\b`, FieldSingleSelect),
	rule("description", "Descripción", `\b(?:description|descripci[oó]n)`, FieldSingleSelect),
	rule("type", "Tipo", `\b(?:type|tipo)\b`, FieldSingleSelect),
	rule("complexity", "Complejidad", `\b(?:complexity|complejidad)\b`, FieldSingleSelect),
	rule("features", "Funcionalidades", `\b(?:features|funcionalidades|caracter[ií]sticas)\b`, FieldMultiSelect),
	rule("dependencies", "Dependencias", `\b(?:dependencies|dependencias)\b`, FieldMultiSelect),
}

// fixedField is a FieldDefinition of a fixed flow plus the pattern that
// recognizes its declaration line in the assistant text.
type fixedField struct {
	def     FieldDefinition
	pattern *regexp.Regexp
}

func fixed(def FieldDefinition, pattern string) fixedField {
	return fixedField{def: def, pattern: regexp.MustCompile(`(?i)` + pattern)}
}

var fixedFlows = map[Flow][]fixedField{
	FlowAddEndpoint: {
		fixed(FieldDefinition{ID: "endpoint_path", Label: "Ruta del endpoint", Kind: FieldFreeText, Placeholder: "/api/v1/recurso"}, `\b(?:ruta|path|url)\b`),
		fixed(FieldDefinition{ID: "http_method", Label: "Método HTTP", Kind: FieldSingleSelect, Options: []string{"GET", "POST", "PUT", "PATCH", "DELETE"}}, `(?:m[eé]todo|\bmethod\b)`),
		fixed(FieldDefinition{ID: "endpoint_description", Label: "Descripción", Kind: FieldFreeText, Placeholder: "¿Qué hace este endpoint?"}, `\b(?:description|descripci[oó]n)`),
		fixed(FieldDefinition{ID: "request_body", Label: "Parámetros / cuerpo", Kind: FieldFreeText, Placeholder: `{"nombre": "string"}`}, `(?:par[aá]metros|\bparameters\b|\bbody\b|\bcuerpo\b|\brequest\b)`),
		fixed(FieldDefinition{ID: "requires_auth", Label: "Requiere autenticación", Kind: FieldSingleSelect, Options: []string{"Sí", "No"}}, `(?:autenticaci[oó]n|\bauth(?:entication)?\b)`),
	},
	FlowAddModule: {
		fixed(FieldDefinition{ID: "module_name", Label: "Nombre del módulo", Kind: FieldFreeText, Placeholder: "ej. Notificaciones"}, `\b(?:name|nombre)\b`),
		fixed(FieldDefinition{ID: "module_description", Label: "Descripción", Kind: FieldFreeText, Placeholder: "¿Qué responsabilidad tiene?"}, `\b(?:description|descripci[oó]n)`),
		fixed(FieldDefinition{ID: "module_type", Label: "Tipo de módulo", Kind: FieldSingleSelect, Options: []string{"Core", "Servicio", "Utilidad", "Integración"}}, `\b(?:type|tipo)\b`),
		fixed(FieldDefinition{ID: "module_features", Label: "Funcionalidades", Kind: FieldMultiSelect, Options: []string{"CRUD", "Autenticación", "Validación", "Notificaciones", "Reportes"}}, `\b(?:features|funcionalidades|caracter[ií]sticas)\b`),
		fixed(FieldDefinition{ID: "module_dependencies", Label: "Dependencias", Kind: FieldFreeText, Placeholder: "ej. Usuarios, Pagos"}, `\b(?:dependencies|dependencias)\b`),
	},
	FlowAddFolder: {
		fixed(FieldDefinition{ID: "folder_name", Label: "Nombre de la carpeta", Kind: FieldFreeText, Placeholder: "ej. services"}, `\b(?:name|nombre)\b`),
		fixed(FieldDefinition{ID: "parent_path", Label: "Ubicación", Kind: FieldFreeText, Placeholder: "ej. src/"}, `(?:ubicaci[oó]n|\bruta\b|\bpath\b|\blocation\b|\bparent\b|carpeta padre)`),
		fixed(FieldDefinition{ID: "folder_purpose", Label: "Propósito", Kind: FieldFreeText, Placeholder: "¿Qué contendrá?"}, `(?:prop[oó]sito|\bpurpose\b)`),
		fixed(FieldDefinition{ID: "folder_contents", Label: "Contenido", Kind: FieldMultiSelect, Options: []string{"Componentes", "Servicios", "Utilidades", "Tests", "Configuración"}}, `\b(?:contenido|contents|archivos|files)\b`),
	},
}

// FlowFields returns a copy of the fixed field set for flow.
func FlowFields(flow Flow) []FieldDefinition {
	ff := fixedFlows[flow]
	out := make([]FieldDefinition, len(ff))
	for i, f := range ff {
		out[i] = f.def
		out[i].Options = append([]string(nil), f.def.Options...)
	}
	return out
}

var sectionMenu = []MenuOption{
	{Number: 1, Title: "Project Structure", Message: "1️⃣ Project Structure - Estructura de carpetas y archivos"},
	{Number: 2, Title: "API Endpoints", Message: "2️⃣ API Endpoints - Rutas y métodos HTTP"},
	{Number: 3, Title: "System Modules", Message: "3️⃣ System Modules - Componentes y lógica de negocio"},
}

// SectionMenuOptions returns the three canonical section options.
func SectionMenuOptions() []MenuOption {
	return append([]MenuOption(nil), sectionMenu...)
}
