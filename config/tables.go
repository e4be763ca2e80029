package config

// https://avoindata.eduskunta.fi/api/v1/tables/PrimaryKeys/rows?perPage=100
//
// SaliDBAanestysAsiakirja, SeatingOfParliament and Statistics have primary
// keys upstream but are not synced.
var defaultTables = []Table{
	{Name: "Attachment", PrimaryKey: "Id"},
	{Name: "AttachmentGroup", PrimaryKey: "Id"},
	{Name: "HetekaData", PrimaryKey: "Id"},
	{Name: "MemberOfParliament", PrimaryKey: "personId"},
	{Name: "SaliDBAanestys", PrimaryKey: "AanestysId"},
	{Name: "SaliDBAanestysEdustaja", PrimaryKey: "EdustajaId"},
	{Name: "SaliDBAanestysJakauma", PrimaryKey: "JakaumaId"},
	{Name: "SaliDBAanestysKieli", PrimaryKey: "KieliId"},
	{Name: "SaliDBIstunto", PrimaryKey: "Id"},
	{Name: "SaliDBKohta", PrimaryKey: "Id"},
	{Name: "SaliDBKohtaAanestys", PrimaryKey: "Id"},
	{Name: "SaliDBKohtaAsiakirja", PrimaryKey: "Id"},
	{Name: "SaliDBMessageLog", PrimaryKey: "Id"},
	{Name: "SaliDBPuheenvuoro", PrimaryKey: "Id"},
	{Name: "SaliDBTiedote", PrimaryKey: "Id"},
	{Name: "VaskiData", PrimaryKey: "Id"},
}

// DefaultTables returns the Eduskunta tables synced when no table file is given.
func DefaultTables() []Table {
	out := make([]Table, len(defaultTables))
	copy(out, defaultTables)
	return out
}
