package sandbox

// Libraries a lua module may pull in with require. Nothing else is
// reachable: the host's package loader is not installed.
var luaHostLibraries = map[string]string{
	"module_interface": luaModuleInterface,
	"util":             luaUtil,
}

const luaModuleInterface = `
local M = {}

local function class(base)
  local cls = {}
  cls.__index = cls
  if base then
    setmetatable(cls, {__index = base})
  end

  function cls.new(config, services)
    local o = setmetatable({config = config or {}, services = services}, cls)
    if o.init then
      o:init()
    end
    return o
  end

  function cls.extend()
    return class(cls)
  end

  return cls
end

M.Client = class()
M.Server = class()

return M
`

const luaUtil = `
local M = {}

function M.clamp(v, lo, hi)
  if v < lo then return lo end
  if v > hi then return hi end
  return v
end

function M.lerp(a, b, t)
  return a + (b - a) * t
end

function M.copy(t)
  local o = {}
  for k, v in pairs(t) do
    o[k] = v
  end
  return o
end

return M
`
