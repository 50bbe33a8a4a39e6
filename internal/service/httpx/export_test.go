package httpx

// HashRequestForTest открывает схему хэширования запросов тестам пакета.
var HashRequestForTest = hashRequest
